// Package hub holds the session-state core of the connection hub.
//
// The package implements:
//   - SessionTable: Maps live connection handles to session records
//   - Controller: Accepts connections, dispatches messages, fans out broadcasts
//   - Host: The runtime boundary the controller drives
//
// Key properties:
//   - Session records are mirrored to host-stored attachments on every
//     mutation, so they survive eviction of the in-memory hub state
//   - OnActivate rehydrates the table from the attachments before any other
//     operation runs
//   - The host serializes all operations for one instance, so the package
//     carries no locks
package hub
