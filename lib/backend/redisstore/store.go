package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Config holds the settings of a redis store.
type Config struct {
	// Addr of the redis server, host:port.
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, so several stores can share a database.
	Prefix string
	// Timeout bounds every call to redis. Zero means no timeout.
	Timeout time.Duration
}

// Store is a loader-writer on top of redis. LoadAll is a single MGET, bulk
// writes are sent as one pipeline and report failed keys with a
// loaderwriter.BulkError.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	owned   bool
}

// compile time check
var _ loaderwriter.ILoaderWriter[string, []byte] = (*Store)(nil)

// New connects to redis and verifies the connection with a PING.
func New(config Config) (*Store, error) {
	if config.Addr == "" {
		return nil, loaderwriter.NewError(loaderwriter.RetCInvalidOperation, "redis store requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	s := NewFromClient(client, config.Prefix, config.Timeout)
	s.owned = true

	ctx, cancel := s.context()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "could not reach redis at %s", config.Addr)
	}
	return s, nil
}

// NewFromClient uses an existing client. Close does not close a client passed in here.
func NewFromClient(client *redis.Client, prefix string, timeout time.Duration) *Store {
	return &Store{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
	}
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return eris.Wrap(s.client.Close(), "could not close redis client")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see loaderwriter.ILoaderWriter)
// --------------------------------------------------------------------------

func (s *Store) Load(key string) ([]byte, bool, error) {
	ctx, cancel := s.context()
	defer cancel()

	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "could not load key %s", key)
	}
	return value, true, nil
}

func (s *Store) LoadAll(keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	ctx, cancel := s.context()
	defer cancel()

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}

	values, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "could not load %d keys", len(keys))
	}

	for i, raw := range values {
		switch v := raw.(type) {
		case nil:
			// missing
		case string:
			result[keys[i]] = []byte(v)
		default:
			return nil, eris.New(fmt.Sprintf("unexpected MGET reply of type %T for key %s", raw, keys[i]))
		}
	}
	return result, nil
}

func (s *Store) Write(key string, value []byte) error {
	ctx, cancel := s.context()
	defer cancel()

	return eris.Wrapf(s.client.Set(ctx, s.key(key), value, 0).Err(), "could not write key %s", key)
}

func (s *Store) WriteAll(entries []loaderwriter.Entry[string, []byte]) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := s.context()
	defer cancel()

	cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, s.key(e.Key), e.Value, 0)
		}
		return nil
	})
	return s.collect(cmds, err, func(i int) string { return entries[i].Key })
}

func (s *Store) Delete(key string) error {
	ctx, cancel := s.context()
	defer cancel()

	return eris.Wrapf(s.client.Del(ctx, s.key(key)).Err(), "could not delete key %s", key)
}

func (s *Store) DeleteAll(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.context()
	defer cancel()

	cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, s.key(key))
		}
		return nil
	})
	return s.collect(cmds, err, func(i int) string { return keys[i] })
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// collect turns the per-command errors of a pipeline into a BulkError
func (s *Store) collect(cmds []redis.Cmder, pipeErr error, keyAt func(int) string) error {
	if pipeErr == nil {
		return nil
	}
	if len(cmds) == 0 {
		return eris.Wrap(pipeErr, "redis pipeline failed")
	}

	bulkErr := loaderwriter.NewBulkError[string]()
	for i, cmd := range cmds {
		if err := cmd.Err(); err != nil {
			bulkErr.Add(keyAt(i), eris.Wrap(err, cmd.Name()))
		}
	}
	if err := bulkErr.ErrorOrNil(); err != nil {
		return err
	}
	return eris.Wrap(pipeErr, "redis pipeline failed")
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.timeout)
}
