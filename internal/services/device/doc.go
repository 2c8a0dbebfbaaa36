// Package device provisions, unlocks and persists the local device's keys.
//
// It enforces the passphrase policy, generates the identity, signed pre-key
// and one-time pool through package devicekeys, and seals them via a
// domain.DeviceStore.
package device
