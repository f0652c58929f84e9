// Package common provides the data structures shared by the wbKV RPC client
// and server.
//
// Key Components:
//
//   - Message: the envelope for all requests and responses. A response carries
//     the error text in Err and the loaderwriter.RetCode in Code, so clients can
//     rebuild typed errors (e.g. loaderwriter.ErrQueueFull).
//
//   - ServerConfig / ClientConfig: configuration of the server (shards, backends,
//     write-behind settings, raft parameters) and of the client. Both have String()
//     pretty printers used at startup.
//
//   - Logger: a zerolog backed implementation of dragonboats logger.ILogger.
//     InitLoggers installs it for dragonboat and all wbKV packages.
package common
