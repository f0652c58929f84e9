// Package server implements the wbKV RPC server. Every shard it serves is a
// write-behind decorator (lib/writebehind) over a slow backend.
//
// Key Components:
//
//   - IShardStore: what an adapter operates on, a loader-writer with Flush.
//
//   - NewLoaderWriterServerAdapter: translates request messages to IShardStore
//     calls. Errors are returned in the response together with their
//     loaderwriter.RetCode, so clients can tell a full queue from a backend error.
//
//   - NewRPCServer: creates a server for a configuration, transport and serializer.
//
// Backends:
//
//   - memory: memstore.Store, lost on restart
//   - bolt:   boltstore.Store, one file per shard in BoltDir (shard-<id>.db)
//   - redis:  redisstore.Store, keys are prefixed with wbkv:<id>:
//   - raft:   raftstore.Store, replicated with dragonboat. Requires ReplicaID,
//     ClusterMembers and the other RAFT parameters of the config.
//
// All shards share the write-behind settings of the config, the queue of a
// shard is named shard-<id> in logs and metrics. The metrics of all queues are
// registered with the transport (GET /metrics for http, the socket
// transports do not expose metrics).
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Backend: common.ShardBackendMemory},
//	    {ShardID: 200, Backend: common.ShardBackendBolt},
//	  },
//	  WriteBehind:   writebehind.DefaultConfig(),
//	  MemoryShards:  16,
//	  BoltDir:       "data",
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
//	go func() { _ = s.Serve() }()
//	...
//	_ = s.Stop(ctx) // drains every queue into its backend
//
// Thread Safety:
//
//	Requests are handled concurrently. Serve and Stop must each be called once.
package server
