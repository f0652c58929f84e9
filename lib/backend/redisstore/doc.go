// Package redisstore provides a loader-writer backed by redis.
//
// Values are stored as plain redis strings under an optional key prefix.
// LoadAll is served by a single MGET. WriteAll and DeleteAll send one
// pipeline and translate per-command failures into a
// loaderwriter.BulkError, which lets the write-behind queue retry only the
// keys that actually failed.
package redisstore
