package loaderwriter

import (
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ILoaderWriter is the synchronous contract of a key/value system of record.
// Backends (memory, bolt, redis, raft), the write-behind decorator and the
// RPC client all implement it, so any of them can be stacked on another.
type ILoaderWriter[K comparable, V any] interface {
	// Load returns the value for key. The boolean reports whether a value was found.
	Load(key K) (value V, found bool, err error)
	// LoadAll returns the values for all keys that were found. Missing keys are omitted.
	LoadAll(keys []K) (values map[K]V, err error)
	// Write inserts or replaces the value for key.
	Write(key K, value V) error
	// WriteAll writes all entries in iteration order.
	WriteAll(entries []Entry[K, V]) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key K) error
	// DeleteAll removes all keys in iteration order.
	DeleteAll(keys []K) error
}

// Entry is a single key/value pair of a bulk write.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("LoaderWriterError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same code. This lets
// errors.Is(err, ErrQueueFull) match errors rebuilt from an RPC response.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinel errors returned by the write-behind queue when it can not accept an operation.
var (
	ErrQueueFull   = NewError(RetCQueueFull, "write-behind queue is full")
	ErrQueueClosed = NewError(RetCQueueClosed, "write-behind queue is closed")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                   // 1: Operation failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation or arguments.
	RetCQueueFull                       // 3: The write-behind queue reached its capacity.
	RetCQueueClosed                     // 4: The write-behind queue was stopped.
	RetCBackendError                    // 5: The backend failed the operation.
	RetCTimeout                         // 6: The operation did not finish in time.
)

// String returns the name of the return code.
func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCQueueFull:
		return "QueueFull"
	case RetCQueueClosed:
		return "QueueClosed"
	case RetCBackendError:
		return "BackendError"
	case RetCTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Bulk Errors
// --------------------------------------------------------------------------

// BulkError is returned by bulk operations that failed for a subset of keys.
// Keys not listed in Failures were applied successfully.
type BulkError[K comparable] struct {
	Failures map[K]error
}

// NewBulkError creates an empty BulkError.
func NewBulkError[K comparable]() *BulkError[K] {
	return &BulkError[K]{Failures: make(map[K]error)}
}

// Add records the failure for key.
func (e *BulkError[K]) Add(key K, err error) {
	e.Failures[key] = err
}

// ErrorOrNil returns nil if no failure was recorded, the BulkError otherwise.
func (e *BulkError[K]) ErrorOrNil() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface.
func (e *BulkError[K]) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for k, err := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%v: %v", k, err))
	}
	sort.Strings(msgs)
	return fmt.Sprintf("bulk operation failed for %d key(s): %s", len(e.Failures), strings.Join(msgs, "; "))
}
