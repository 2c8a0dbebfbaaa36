// Package app loads configuration and wires application dependencies for the
// CLI.
//
// Configuration comes from config.yaml in the home directory, over built-in
// defaults. NewWire builds the concrete stores, relay client and high-level
// services from Config and exposes them via the Wire struct.
package app
