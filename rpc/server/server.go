package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/wbKV/lib/backend/boltstore"
	"github.com/ValentinKolb/wbKV/lib/backend/memstore"
	"github.com/ValentinKolb/wbKV/lib/backend/raftstore"
	"github.com/ValentinKolb/wbKV/lib/backend/redisstore"
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
	"github.com/ValentinKolb/wbKV/lib/writebehind/queue"
	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/serializer"
	"github.com/ValentinKolb/wbKV/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a shard of the RPC server: the write-behind decorator it
// serves, the adapter handling requests for it and a function closing the
// backend behind the decorator.
type serverShard struct {
	Store        *writebehind.Decorator[string, []byte]
	Adapter      IRPCServerAdapter
	closeBackend func() error
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer serves write-behind shards over an RPC transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	nodeHost   *dragonboat.NodeHost
}

// handle decodes a request, lets the shard adapter handle it and encodes the response
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	if shard, ok := s.shards.Load(shardId); !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = shard.Adapter.Handle(&msg, shard.Store)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize %s response for shard %d: %v", respMsg.MsgType, shardId, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// writeMetrics writes the queue metrics of all shards
func (s *RPCServer) writeMetrics(w io.Writer) {
	s.shards.Range(func(_ uint64, shard serverShard) bool {
		shard.Store.WritePrometheus(w)
		return true
	})
}

// Start initializes loggers, backends and shards and registers the handlers
// with the transport. It does not listen, see Serve.
func (s *RPCServer) Start() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// The NodeHost is only needed for raft shards
	if s.config.HasBackend(common.ShardBackendRaft) {
		nh, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nh
	}

	for _, shardConfig := range s.config.Shards {
		if err := s.addShard(shardConfig); err != nil {
			_ = s.Stop(context.Background())
			return err
		}
	}

	Logger.Infof("wbKV setup completed successfully")

	s.transport.RegisterHandler(s.handle)
	s.transport.RegisterMetrics(s.writeMetrics)
	return nil
}

// addShard creates the backend of a shard and wraps it in a write-behind decorator
func (s *RPCServer) addShard(shardConfig common.ServerShard) error {
	backend, closeBackend, err := s.newBackend(shardConfig)
	if err != nil {
		return fmt.Errorf("shard %d: %w", shardConfig.ShardID, err)
	}

	wbConfig := s.config.WriteBehind
	wbConfig.Name = fmt.Sprintf("shard-%d", shardConfig.ShardID)

	shardID := shardConfig.ShardID
	onError := func(op queue.Operation[string, []byte], err error) {
		Logger.Errorf("shard %d: dropped %s of key %q: %v", shardID, op.Kind, op.Key, err)
	}

	decorator, err := queue.NewDecorator(backend, wbConfig, onError)
	if err != nil {
		_ = closeBackend()
		return fmt.Errorf("shard %d: %w", shardConfig.ShardID, err)
	}

	s.shards.Store(shardConfig.ShardID, serverShard{
		Store:        decorator,
		Adapter:      NewLoaderWriterServerAdapter(s.config.Timeout()),
		closeBackend: closeBackend,
	})
	Logger.Infof("created %s shard %d", shardConfig.Backend, shardConfig.ShardID)
	return nil
}

// newBackend creates the slow store of a shard
func (s *RPCServer) newBackend(shardConfig common.ServerShard) (loaderwriter.ILoaderWriter[string, []byte], func() error, error) {
	noop := func() error { return nil }

	switch shardConfig.Backend {
	case common.ShardBackendMemory:
		return memstore.NewBytes(s.config.MemoryShards), noop, nil

	case common.ShardBackendBolt:
		if err := os.MkdirAll(s.config.BoltDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create bolt directory: %w", err)
		}
		store, err := boltstore.New(boltstore.Config{
			Path:    filepath.Join(s.config.BoltDir, fmt.Sprintf("shard-%d.db", shardConfig.ShardID)),
			Timeout: s.config.Timeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case common.ShardBackendRedis:
		store, err := redisstore.New(redisstore.Config{
			Addr:     s.config.RedisAddr,
			Password: s.config.RedisPassword,
			DB:       s.config.RedisDB,
			Prefix:   fmt.Sprintf("wbkv:%d:", shardConfig.ShardID),
			Timeout:  s.config.Timeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case common.ShardBackendRaft:
		if s.nodeHost == nil {
			return nil, nil, fmt.Errorf("node host is nil, cannot create raft store")
		}
		err := s.nodeHost.StartConcurrentReplica(
			s.config.ClusterMembers,
			false,
			raftstore.CreateStateMachineFactory(s.config.MemoryShards),
			s.config.ToDragonboatConfig(shardConfig.ShardID),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start raft shard: %w", err)
		}
		return raftstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, s.config.Timeout()), noop, nil

	default:
		return nil, nil, fmt.Errorf("invalid shard backend: %s", shardConfig.Backend)
	}
}

// Serve starts the RPC server
// This function will also initialize the shards and start the transport layer.
// It blocks until the transport stops.
func (s *RPCServer) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Stop shuts the transport down, drains every shard into its backend and
// closes the backends. All shards are stopped even if some fail.
func (s *RPCServer) Stop(ctx context.Context) error {
	var errs []error
	if err := s.transport.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}

	s.shards.Range(func(id uint64, shard serverShard) bool {
		Logger.Infof("stopping shard %d (%d pending)", id, shard.Store.Size())
		if err := shard.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", id, err))
		}
		if err := shard.closeBackend(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d backend: %w", id, err))
		}
		s.shards.Delete(id)
		return true
	})

	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
	return errors.Join(errs...)
}
