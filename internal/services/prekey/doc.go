// Package prekey builds and publishes pre-key bundles for the local device.
//
// Every bundle issues at most one one-time pre-key; the pool change is
// persisted before anything leaves the process.
package prekey
