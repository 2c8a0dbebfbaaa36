// Package wire encodes SecureChat structures for the relay.
//
// JSON is the default and matches the documented message layout; CBOR
// carries the same fields with binary keys and is selected with the
// wire_format config option.
package wire
