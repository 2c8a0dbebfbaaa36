// Package commands defines the securechat CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init            Create the local device keys
//   - fingerprint     Print the identity fingerprint
//   - bundle          Print a public pre-key bundle
//   - publish         Publish pre-key bundles to a relay
//   - replenish       Generate more one-time pre-keys
//   - start-session   Establish an X3DH session with every device of a peer
//   - sessions        List sessions; "sessions remove" tears one down
//   - send / recv     Exchange messages through the relay
//   - encrypt / decrypt  Seal and open messages without a relay
//
// # Implementation
//
// The root command loads config.yaml from --home, applies flag overrides and
// builds the dependency graph (stores, services, relay client) before any
// subcommand runs.
package commands
