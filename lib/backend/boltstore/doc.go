// Package boltstore provides a persistent single-node loader-writer backed
// by a bbolt database file.
//
// All keys live in one bucket. WriteAll and DeleteAll run in a single
// transaction, so a bulk flush of the write-behind queue is atomic on this
// backend. Driver errors are wrapped with eris and keep their stack.
package boltstore
