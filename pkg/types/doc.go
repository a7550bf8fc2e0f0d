// Package types defines shared Go types used by both the agent and server.
// These are the canonical in-memory representations of sensor readings,
// plant context, threshold sets and delivered alerts, separate from the
// JSON wire format.
package types
