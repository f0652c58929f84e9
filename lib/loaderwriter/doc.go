// Package loaderwriter defines the synchronous key/value contract every
// component of wbKV speaks: ILoaderWriter.
//
// A loader-writer is a system of record. Load and LoadAll read from it,
// Write, WriteAll, Delete and DeleteAll mutate it. The contract is generic
// over the key and value types, so the write-behind decorator can sit in
// front of an in-process map as well as a remote redis or a raft cluster.
//
// Key Components:
//
//   - ILoaderWriter: the contract itself. Missing keys are reported through
//     the found flag of Load and by omission in LoadAll, never as an error.
//
//   - Error / RetCode: a typed error with a return code. Errors compare by
//     code under errors.Is, so a sentinel like ErrQueueFull matches an error
//     that crossed the RPC boundary and was rebuilt on the client.
//
//   - BulkError: reports which keys of a bulk operation failed. The
//     write-behind queue uses it to retry only the failed subset.
//
// Implementations live in lib/backend/* (systems of record),
// lib/writebehind (the asynchronous decorator) and rpc/client (remote access).
// The package loaderwriter/testing holds a conformance suite all of them run.
package loaderwriter
