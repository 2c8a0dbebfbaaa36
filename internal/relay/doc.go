// Package relay talks to, and implements, the SecureChat relay: an untrusted
// store-and-forward service holding public pre-key bundles and queued
// envelopes. It never sees plaintext or private keys.
//
// HTTP API
//
//	POST /bundles/{user}/{device}   publish one bundle for a device
//	GET  /bundles/{user}/{device}   pop one bundle for a device
//	GET  /bundles/{user}            pop one bundle for every device of user
//	POST /msg/{user}                enqueue an Envelope (id assigned if empty)
//	GET  /msg/{user}?limit=N        list up to N queued envelopes
//	POST /msg/{user}/ack            {"ids":[...]} drop acknowledged envelopes
//
// A device's last bundle is kept, stripped of its one-time pre-key, so the
// device stays reachable after its queue drains. Bodies are JSON unless the
// request says application/cbor; responses follow the Accept header.
//
// HTTP is the client; Server is the in-memory implementation run by
// cmd/relay and used in tests.
package relay
