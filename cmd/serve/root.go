package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/wbKV/cmd/util"
	"github.com/ValentinKolb/wbKV/lib/util"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the wbKV server",
		Long:    `Start the wbKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is WBKV_<flag> (e.g. WBKV_BATCH_SIZE=128)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := writebehind.DefaultConfig()

	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=memory", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=BACKEND where BACKEND is one of: memory, bolt, redis, raft"))

	// write-behind
	key = "write-coalescing"
	ServeCmd.PersistentFlags().Bool(key, defaults.WriteCoalescing, cmdUtil.WrapString("Collapse pending operations on the same key into the most recent one"))

	key = "batch-size"
	ServeCmd.PersistentFlags().Int(key, defaults.BatchSize, cmdUtil.WrapString("Maximum number of operations applied to the backend in one batch"))

	key = "max-write-delay"
	ServeCmd.PersistentFlags().Duration(key, defaults.MaxWriteDelay, cmdUtil.WrapString("Longest time an operation waits for its batch to fill up (e.g. 50ms)"))

	key = "concurrency"
	ServeCmd.PersistentFlags().Int(key, defaults.Concurrency, cmdUtil.WrapString("Number of queue stripes per shard, each flushing to the backend independently"))

	key = "max-queue-size"
	ServeCmd.PersistentFlags().Int(key, defaults.MaxQueueSize, cmdUtil.WrapString("Maximum number of pending operations per stripe, writes are rejected when it is reached (0 = unbounded)"))

	key = "retry-attempts"
	ServeCmd.PersistentFlags().Int(key, defaults.RetryAttempts, cmdUtil.WrapString("How often a failed backend call is retried before the operations are dropped"))

	key = "retry-delay"
	ServeCmd.PersistentFlags().Duration(key, defaults.RetryDelay, cmdUtil.WrapString("Pause between two attempts of a backend call"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Float64(key, defaults.RateLimitPerSecond, cmdUtil.WrapString("Maximum number of operations per second applied to the backend of each shard (0 = unlimited)"))

	// backends
	key = "memory-shards"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Number of lock stripes of the memory backend (also used for the state of raft shards)"))

	key = "bolt-dir"
	ServeCmd.PersistentFlags().String(key, "data/bolt", cmdUtil.WrapString("Directory of the bolt database files (one file per shard)"))

	key = "redis-addr"
	ServeCmd.PersistentFlags().String(key, "localhost:6379", cmdUtil.WrapString("Address of the redis server used by redis shards"))

	key = "redis-password"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Password of the redis server"))

	key = "redis-db"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Redis database to use"))

	// raft
	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(raft backend) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(raft backend) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied log entries. 0 disables automatic snapshots"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(raft backend) CompactionOverhead defines the number of log entries kept after a snapshot"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data/raft", cmdUtil.WrapString("(raft backend) DataDir is the directory used for the raft log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft backend) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft backend) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	// server
	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for backend calls, flush requests and the graceful shutdown"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen, the socket path for the unix transport"))

	key = "transport-workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Requests served in parallel per connection (tcp and unix only)"))

	cmdUtil.SetupSocketFlags(ServeCmd)

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := common.ParseServerShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.WriteBehind = writebehind.Config{
		WriteCoalescing:    viper.GetBool("write-coalescing"),
		BatchSize:          viper.GetInt("batch-size"),
		MaxWriteDelay:      viper.GetDuration("max-write-delay"),
		Concurrency:        viper.GetInt("concurrency"),
		MaxQueueSize:       viper.GetInt("max-queue-size"),
		RetryAttempts:      viper.GetInt("retry-attempts"),
		RetryDelay:         viper.GetDuration("retry-delay"),
		RateLimitPerSecond: viper.GetFloat64("rate-limit"),
	}
	if err := serveCmdConfig.WriteBehind.Validate(); err != nil {
		return err
	}

	serveCmdConfig.MemoryShards = viper.GetInt("memory-shards")
	serveCmdConfig.BoltDir = viper.GetString("bolt-dir")
	serveCmdConfig.RedisAddr = viper.GetString("redis-addr")
	serveCmdConfig.RedisPassword = viper.GetString("redis-password")
	serveCmdConfig.RedisDB = viper.GetInt("redis-db")

	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Transport = viper.GetString("transport")
	switch serveCmdConfig.Transport {
	case "http", "tcp", "unix":
	default:
		return fmt.Errorf("invalid transport %s (expected one of: http, tcp, unix)", serveCmdConfig.Transport)
	}
	serveCmdConfig.WorkersPerConnection = viper.GetInt("transport-workers-per-conn")
	serveCmdConfig.Socket = cmdUtil.GetSocketConfig()

	// the raft parameters are only checked if a raft shard is served
	isRaft := serveCmdConfig.HasBackend(common.ShardBackendRaft)

	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = util.HashString(id, 0)
	} else if isRaft {
		return fmt.Errorf("ReplicaId is required for raft shards")
	}

	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		serveCmdConfig.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(clusterMembers, ",") {
			name, addr, ok := util.ParseKeyValue(member)
			if !ok {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			serveCmdConfig.ClusterMembers[util.HashString(name, 0)] = addr
		}
	} else if isRaft {
		return fmt.Errorf("ClusterMembers is required for raft shards")
	}

	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok && isRaft {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	return nil
}

// run starts the server and drains all shards on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}
	serv := server.NewRPCServer(*serveCmdConfig, t, s)

	stopped := make(chan error, 1)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		signal.Stop(sig)

		// a timeout <= 0 waits for the drain without a bound
		ctx, cancel := context.Background(), context.CancelFunc(func() {})
		if timeout := serveCmdConfig.Timeout(); timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()
		stopped <- serv.Stop(ctx)
	}()

	if err := serv.Serve(); err != nil {
		return err
	}
	return <-stopped
}
