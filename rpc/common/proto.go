package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// KV is a single key/value pair inside a bulk message.
type KV struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string   `json:"key,omitempty"`     // Used for: Load, Write, Delete
	Value   []byte   `json:"value,omitempty"`   // Used for: Write (request), Load (response)
	Keys    []string `json:"keys,omitempty"`    // Used for: LoadAll, DeleteAll
	Entries []KV     `json:"entries,omitempty"` // Used for: WriteAll (request), LoadAll (response)

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: Load responses (key found)
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
	Code uint64 `json:"code,omitempty"` // loaderwriter.RetCode of the error (0 if the error carried none)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewLoadRequest creates a new Load request
func NewLoadRequest(key string) *Message {
	return &Message{
		MsgType: MsgTLWLoad,
		Key:     key,
	}
}

// NewLoadResponse creates a new Load response
func NewLoadResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTLWLoad,
		Ok:      ok,
		Value:   value,
	}
	return msg.withErr(err)
}

// NewLoadAllRequest creates a new LoadAll request
func NewLoadAllRequest(keys []string) *Message {
	return &Message{
		MsgType: MsgTLWLoadAll,
		Keys:    keys,
	}
}

// NewLoadAllResponse creates a new LoadAll response. Only found keys are part of the response.
func NewLoadAllResponse(values map[string][]byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTLWLoadAll,
	}
	if len(values) > 0 {
		msg.Entries = make([]KV, 0, len(values))
		for k, v := range values {
			msg.Entries = append(msg.Entries, KV{Key: k, Value: v})
		}
	}
	return msg.withErr(err)
}

// NewWriteRequest creates a new Write request
func NewWriteRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTLWWrite,
		Key:     key,
		Value:   value,
	}
}

// NewWriteResponse creates a new Write response
func NewWriteResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTLWWrite,
	}
	return msg.withErr(err)
}

// NewWriteAllRequest creates a new WriteAll request
func NewWriteAllRequest(entries []KV) *Message {
	return &Message{
		MsgType: MsgTLWWriteAll,
		Entries: entries,
	}
}

// NewWriteAllResponse creates a new WriteAll response
func NewWriteAllResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTLWWriteAll,
	}
	return msg.withErr(err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string) *Message {
	return &Message{
		MsgType: MsgTLWDelete,
		Key:     key,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTLWDelete,
	}
	return msg.withErr(err)
}

// NewDeleteAllRequest creates a new DeleteAll request
func NewDeleteAllRequest(keys []string) *Message {
	return &Message{
		MsgType: MsgTLWDeleteAll,
		Keys:    keys,
	}
}

// NewDeleteAllResponse creates a new DeleteAll response
func NewDeleteAllResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTLWDeleteAll,
	}
	return msg.withErr(err)
}

// NewFlushRequest creates a new Flush request
func NewFlushRequest() *Message {
	return &Message{
		MsgType: MsgTLWFlush,
	}
}

// NewFlushResponse creates a new Flush response
func NewFlushResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTLWFlush,
	}
	return msg.withErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// withErr sets Err and Code from err
func (m *Message) withErr(err error) *Message {
	if err == nil {
		return m
	}
	m.Err = err.Error()
	var lwErr *loaderwriter.Error
	if errors.As(err, &lwErr) {
		m.Code = uint64(lwErr.Code)
	}
	return m
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTSuccess:     "success",
	MsgTError:       "error",
	MsgTLWLoad:      "load",
	MsgTLWLoadAll:   "loadAll",
	MsgTLWWrite:     "write",
	MsgTLWWriteAll:  "writeAll",
	MsgTLWDelete:    "delete",
	MsgTLWDeleteAll: "deleteAll",
	MsgTLWFlush:     "flush",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range msgTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ILoaderWriter operations

	MsgTLWLoad      // Load a value by key
	MsgTLWLoadAll   // Load the values of many keys
	MsgTLWWrite     // Write a key-value pair
	MsgTLWWriteAll  // Write many key-value pairs
	MsgTLWDelete    // Delete a key
	MsgTLWDeleteAll // Delete many keys

	// Write-behind operations

	MsgTLWFlush // Wait until all pending writes reached the backend
)
