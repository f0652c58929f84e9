// Package rpc exposes write-behind shards over the network. It is the
// communication layer between the wbKV server and its clients.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions. The http implementation
//     serves shards at POST /{shardId} next to /health and /metrics; the tcp
//     and unix implementations send length-prefixed frames over sockets and
//     multiplex many requests on one connection.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: A loaderwriter.ILoaderWriter that forwards every call to a shard
//     of a remote server. Typed errors such as loaderwriter.ErrQueueFull survive
//     the round trip.
//
//   - server: Creates a backend and a write-behind decorator per shard and
//     dispatches incoming messages to them.
package rpc
