// Package internal contains the wire format between the raft store client
// and its state machine: Command (replicated writes and deletes) and Query
// (local reads).
package internal
