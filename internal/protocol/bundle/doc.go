// Package bundle builds and verifies pre-key bundles.
//
// The signature binds the signed pre-key to the identity, so a directory that
// substitutes its own pre-key is detected by Verify before any DH runs.
package bundle
