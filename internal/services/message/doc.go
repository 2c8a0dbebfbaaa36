// Package message sends and receives encrypted messages.
//
// It seals and opens messages on the session registry's ratchet states and
// exchanges envelopes via the RelayClient, one envelope per recipient device.
package message
