// Package serializer converts RPC messages (common.Message) to bytes and back.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//     ByName selects an implementation by its configuration name.
//
//   - binarySerializerImpl: Custom binary format. A flag byte marks the present
//     fields, strings and byte slices are length prefixed, Keys and Entries are
//     count prefixed lists. It keeps nil and empty slices apart.
//
//   - gobSerializerImpl: Go's gob encoding. Empty slices arrive as nil.
//
//   - jsonSerializerImpl: JSON encoding, useful for debugging with curl. Message
//     types are written as strings. Empty slices arrive as nil.
//
// The wbKV client treats a nil value of a found key as an empty value, so all
// three formats are interchangeable for the loader-writer protocol.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use.
package serializer
