// Package device defines the data model and the transport contract shared by the
// connection manager and its collaborators.
//
// This package contains:
//   - The Device / Service / Characteristic records kept in the registry
//   - Characteristic capability flags (Properties)
//   - The Transport and Session interfaces a radio backend has to implement
//   - The error taxonomy (not found, not connected, identity mismatch, transient, ...)
//   - UUID canonicalization helpers
//
// Nothing in this package talks to a radio. See internal/device/go-ble for the
// go-ble backed Transport.
package device
