// Package main runs the in-memory HTTP relay used by SecureChat during
// development and tests. It stores published pre-key bundles per device and
// queues encrypted envelopes for recipients until they acknowledge them.
//
// See package internal/relay for the HTTP API.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Bodies are JSON or CBOR; non-2xx statuses carry a short error message.
//   - An access log records method, path, remote, status, bytes and duration
//     for each request.
//   - The default listen address is :8080.
//
// The relay is an untrusted middleman: it never sees plaintext or private
// keys, only ciphertext and public bundles.
package main
