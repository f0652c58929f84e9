// Package cmd implements the command-line interface of wbKV. It provides
// commands for running the server and for talking to it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the server with its shards and write-behind settings
//   - kv: Load, write and delete keys of a shard, flush its queue and run a small benchmark
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// The root flags --serializer and --transport (http, tcp, unix) apply to both
// sides and must match between server and client.
//
// All flags can also be set with environment variables of the form
// WBKV_<FLAG> (e.g. WBKV_BATCH_SIZE=128), .env and .env.local are read on start.
//
// See wbkv -help for a list of all commands.
package cmd
