// Package raftstore implements a replicated loader-writer backend on top of
// the Dragonboat RAFT library. It is used as the slow, strongly consistent
// store behind a write-behind decorator in clustered deployments.
//
// Architecture:
//
//   - Store: implements loaderwriter.ILoaderWriter[string, []byte]. Writes and
//     deletes are serialized into commands and proposed with SyncPropose,
//     reads go through SyncRead (linearizable). Len uses StaleRead.
//
//   - KVStateMachine: a dragonboat IConcurrentStateMachine keeping the data
//     of one replica in a memstore.Store. Snapshots are written as a single
//     bulk write command.
//
//   - internal: the Command and Query wire types.
//
// Bulk operations:
//
//	WriteAll and DeleteAll become a single log entry. They are applied
//	atomically on every replica, so the bulk either fails or succeeds as a
//	whole. Empty bulks are not proposed at all.
//
// Busy handling:
//
//	When dragonboat reports ErrSystemBusy the request is retried up to five
//	times with a pause of a tenth of the configured timeout. Afterwards a
//	loaderwriter.Error with code RetCTimeout is returned.
package raftstore
