package boltstore

import (
	"time"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"
)

// valueVersion prefixes every stored value, so an empty value stays
// distinguishable from a missing key.
const valueVersion byte = 1

// Config holds the settings of a bolt store.
type Config struct {
	// Path of the database file. It is created if it does not exist.
	Path string
	// Bucket all keys are stored in. Defaults to "wbkv".
	Bucket string
	// Timeout for acquiring the file lock. Zero waits forever.
	Timeout time.Duration
	// NoSync skips fsync after each commit. Only safe for throwaway data.
	NoSync bool
}

// Store is a persistent loader-writer on top of a bbolt file.
// Bulk operations run in a single transaction.
//
// Thread-safety: all methods are safe for concurrent use, bbolt serializes writers.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// compile time check
var _ loaderwriter.ILoaderWriter[string, []byte] = (*Store)(nil)

// New opens (or creates) the database file and ensures the bucket exists.
func New(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, loaderwriter.NewError(loaderwriter.RetCInvalidOperation, "bolt store requires a path")
	}
	if config.Bucket == "" {
		config.Bucket = "wbkv"
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{Timeout: config.Timeout, NoSync: config.NoSync})
	if err != nil {
		return nil, eris.Wrapf(err, "could not open bbolt store at %s", config.Path)
	}

	bucket := []byte(config.Bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "could not ensure bucket %s exists", config.Bucket)
	}

	return &Store{db: db, bucket: bucket}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return eris.Wrap(s.db.Close(), "could not close bbolt store")
}

// Path returns the path of the database file.
func (s *Store) Path() string {
	return s.db.Path()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see loaderwriter.ILoaderWriter)
// --------------------------------------------------------------------------

func (s *Store) Load(key string) (value []byte, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		value, found = decode(tx.Bucket(s.bucket).Get([]byte(key)))
		return nil
	})
	if err != nil {
		return nil, false, eris.Wrapf(err, "could not load key %s", key)
	}
	return value, found, nil
}

func (s *Store) LoadAll(keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, key := range keys {
			if value, found := decode(b.Get([]byte(key))); found {
				result[key] = value
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "could not load %d keys", len(keys))
	}
	return result, nil
}

func (s *Store) Write(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), encode(value))
	})
	return eris.Wrapf(err, "could not write key %s", key)
}

func (s *Store) WriteAll(entries []loaderwriter.Entry[string, []byte]) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, e := range entries {
			if err := b.Put([]byte(e.Key), encode(e.Value)); err != nil {
				return eris.Wrapf(err, "key %s", e.Key)
			}
		}
		return nil
	})
	return eris.Wrapf(err, "could not write %d entries", len(entries))
}

func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	return eris.Wrapf(err, "could not delete key %s", key)
}

func (s *Store) DeleteAll(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return eris.Wrapf(err, "key %s", key)
			}
		}
		return nil
	})
	return eris.Wrapf(err, "could not delete %d keys", len(keys))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func encode(value []byte) []byte {
	out := make([]byte, 1+len(value))
	out[0] = valueVersion
	copy(out[1:], value)
	return out
}

// decode copies the value out of the bolt page, it is only valid inside the transaction
func decode(raw []byte) ([]byte, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	value := make([]byte, len(raw)-1)
	copy(value, raw[1:])
	return value, true
}
