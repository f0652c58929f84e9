package raftstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/wbKV/lib/backend/memstore"
	"github.com/ValentinKolb/wbKV/lib/backend/raftstore/internal"
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a dragonboat state machine replicating a key/value map.
// Every replica holds its data in a memstore.Store.
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	data      *memstore.Store[string, []byte]
	shards    int
}

// compile time check
var _ sm.IConcurrentStateMachine = (*KVStateMachine)(nil)

// CreateStateMachineFactory returns a function that can be used by dragonboat to create
// a new state machine for a node host. shards is the number of memstore shards per replica.
func CreateStateMachineFactory(shards int) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return NewStateMachine(shardID, replicaID, shards)
	}
}

// NewStateMachine creates an empty state machine.
func NewStateMachine(shardID, replicaID uint64, shards int) *KVStateMachine {
	return &KVStateMachine{
		replicaID: replicaID,
		shardID:   shardID,
		data:      memstore.NewBytes(shards),
		shards:    shards,
	}
}

// Lookup handles read-only queries.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, loaderwriter.NewError(loaderwriter.RetCInternalError, fmt.Sprintf("invalid query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTLoad:
		values, _ := fsm.data.LoadAll(q.Keys)
		return internal.QueryResult{Values: values}, nil
	case internal.QueryTSize:
		return fsm.data.Len(), nil
	default:
		return nil, loaderwriter.NewError(loaderwriter.RetCInvalidOperation, fmt.Sprintf("unknown query operation: %s", q.Type))
	}
}

// Update applies committed commands. The result value of each entry is a loaderwriter.RetCode.
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = result(loaderwriter.RetCInvalidOperation, "empty command ignored")
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = result(loaderwriter.RetCInternalError, fmt.Sprintf("failed to deserialize command: %v", err))
			continue
		}

		switch cmd.Type {
		case internal.CommandTWrite:
			for _, kv := range cmd.Entries {
				_ = fsm.data.Write(kv.Key, kv.Value)
			}
			entries[idx].Result = result(loaderwriter.RetCSuccess, fmt.Sprintf("wrote %d key(s)", len(cmd.Entries)))
		case internal.CommandTDelete:
			for _, kv := range cmd.Entries {
				_ = fsm.data.Delete(kv.Key)
			}
			entries[idx].Result = result(loaderwriter.RetCSuccess, fmt.Sprintf("deleted %d key(s)", len(cmd.Entries)))
		default:
			entries[idx].Result = result(loaderwriter.RetCInvalidOperation, fmt.Sprintf("unknown command operation: %s", cmd.Type))
		}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func result(code loaderwriter.RetCode, msg string) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(msg)}
}

// PrepareSnapshot copies the current entries. Dragonboat guarantees that
// no Update runs concurrently with this call.
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	snapshot := make([]internal.KV, 0, fsm.data.Len())
	fsm.data.Range(func(key string, value []byte) bool {
		snapshot = append(snapshot, internal.KV{Key: key, Value: value})
		return true
	})
	return snapshot, nil
}

// SaveSnapshot writes the prepared entries as a single write command.
func (fsm *KVStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	entries, ok := ctx.([]internal.KV)
	if !ok {
		return fmt.Errorf("invalid snapshot context type: %T", ctx)
	}
	cmd := internal.Command{Type: internal.CommandTWrite, Entries: entries}
	_, err := writer.Write(cmd.Serialize())
	return err
}

// RecoverFromSnapshot replaces the current state with the snapshot content.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	cmd := internal.Command{}
	if err := cmd.Deserialize(data); err != nil {
		return fmt.Errorf("corrupt snapshot: %w", err)
	}
	if cmd.Type != internal.CommandTWrite {
		return fmt.Errorf("corrupt snapshot: unexpected command type %s", cmd.Type)
	}

	fsm.data.Clear()
	for _, kv := range cmd.Entries {
		_ = fsm.data.Write(kv.Key, kv.Value)
	}
	return nil
}

// Close releases the replica's data.
func (fsm *KVStateMachine) Close() error {
	fsm.data.Clear()
	return nil
}
