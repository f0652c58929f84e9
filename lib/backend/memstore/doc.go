// Package memstore provides an in-memory, sharded loader-writer.
//
// It is the default backend of the server and the reference backend in
// tests. Store is generic, NewBytes returns the []byte flavor that copies
// values so callers can reuse their buffers.
package memstore
