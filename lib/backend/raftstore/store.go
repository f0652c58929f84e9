package raftstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/wbKV/lib/backend/raftstore/internal"
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// defaultTimeout bounds raft requests when no positive timeout is given.
// dragonboat refuses SyncPropose and SyncRead contexts without a deadline.
const defaultTimeout = 5 * time.Second

// raftNode is the part of a dragonboat.NodeHost the store talks to.
type raftNode interface {
	SyncPropose(ctx context.Context, session *client.Session, cmd []byte) (sm.Result, error)
	SyncRead(ctx context.Context, shardID uint64, query interface{}) (interface{}, error)
	StaleRead(shardID uint64, query interface{}) (interface{}, error)
}

// Store is a loader-writer backed by a raft replicated KVStateMachine.
// All writes are linearizable; a bulk write or delete is a single log entry
// and therefore applied atomically on every replica.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	nh      raftNode
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// compile time check
var _ loaderwriter.ILoaderWriter[string, []byte] = (*Store)(nil)

// NewDistributedStore creates a store for the given shard. The shard must
// have been started on nh with a factory from CreateStateMachineFactory.
// A timeout <= 0 falls back to a default of five seconds.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) *Store {
	return newStore(nh, nh.GetNoOPSession(shardID), shardID, timeout)
}

func newStore(nh raftNode, cs *client.Session, shardID uint64, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write sends the command via SyncPropose and retries while the system is busy.
func (s *Store) write(cmd internal.Command) error {
	if len(cmd.Entries) == 0 {
		return nil
	}
	data := cmd.Serialize()

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return toError(err)
		}
		if res.Value != uint64(loaderwriter.RetCSuccess) {
			return loaderwriter.NewError(loaderwriter.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return loaderwriter.NewError(loaderwriter.RetCTimeout, "system busy, giving up after retries")
}

// read queries the state machine and converts the response into R.
// Stale reads skip the read index protocol and may return outdated data.
func read[R any](s *Store, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		var res interface{}
		var err error

		if stale {
			res, err = s.nh.StaleRead(s.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			res, err = s.nh.SyncRead(ctx, s.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return zero, toError(err)
		}

		casted, ok := res.(R)
		if !ok {
			return zero, loaderwriter.NewError(loaderwriter.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, loaderwriter.NewError(loaderwriter.RetCTimeout, "system busy, giving up after retries")
}

// toError keeps loader-writer errors raised by the state machine and maps
// everything else to a backend or timeout error.
func toError(err error) error {
	var lwErr *loaderwriter.Error
	if errors.As(err, &lwErr) {
		return lwErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, dragonboat.ErrTimeout) {
		return loaderwriter.NewError(loaderwriter.RetCTimeout, err.Error())
	}
	return loaderwriter.NewError(loaderwriter.RetCBackendError, err.Error())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see loaderwriter.ILoaderWriter)
// --------------------------------------------------------------------------

func (s *Store) Load(key string) ([]byte, bool, error) {
	values, err := s.LoadAll([]string{key})
	if err != nil {
		return nil, false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *Store) LoadAll(keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	res, err := read[internal.QueryResult](s, internal.Query{Type: internal.QueryTLoad, Keys: keys}, false)
	if err != nil {
		return nil, err
	}
	if res.Values == nil {
		return map[string][]byte{}, nil
	}
	return res.Values, nil
}

func (s *Store) Write(key string, value []byte) error {
	return s.write(internal.Command{
		Type:    internal.CommandTWrite,
		Entries: []internal.KV{{Key: key, Value: value}},
	})
}

func (s *Store) WriteAll(entries []loaderwriter.Entry[string, []byte]) error {
	cmd := internal.Command{Type: internal.CommandTWrite, Entries: make([]internal.KV, len(entries))}
	for i, e := range entries {
		cmd.Entries[i] = internal.KV{Key: e.Key, Value: e.Value}
	}
	return s.write(cmd)
}

func (s *Store) Delete(key string) error {
	return s.write(internal.Command{
		Type:    internal.CommandTDelete,
		Entries: []internal.KV{{Key: key}},
	})
}

func (s *Store) DeleteAll(keys []string) error {
	cmd := internal.Command{Type: internal.CommandTDelete, Entries: make([]internal.KV, len(keys))}
	for i, key := range keys {
		cmd.Entries[i] = internal.KV{Key: key}
	}
	return s.write(cmd)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// Len returns the number of keys on the local replica (stale read).
func (s *Store) Len() (int, error) {
	return read[int](s, internal.Query{Type: internal.QueryTSize}, true)
}
