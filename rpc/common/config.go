package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/wbKV/lib/writebehind"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ShardBackendType selects the slow store behind a shard's write-behind decorator.
type ShardBackendType string

const (
	ShardBackendMemory ShardBackendType = "memory"
	ShardBackendBolt   ShardBackendType = "bolt"
	ShardBackendRedis  ShardBackendType = "redis"
	ShardBackendRaft   ShardBackendType = "raft"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Backend is the store behind the shard's write-behind queue
	Backend ShardBackendType
}

// ParseServerShards parses a comma separated list of ID=BACKEND pairs (e.g. "100=memory,200=bolt").
func ParseServerShards(s string) ([]ServerShard, error) {
	var shards []ServerShard
	seen := map[uint64]bool{}
	for _, shardConfig := range strings.Split(s, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=BACKEND)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}
		if seen[shardID] {
			return nil, fmt.Errorf("duplicate shard ID %d", shardID)
		}
		seen[shardID] = true

		backend := ShardBackendType(strings.TrimSpace(parts[1]))
		switch backend {
		case ShardBackendMemory, ShardBackendBolt, ShardBackendRedis, ShardBackendRaft:
		default:
			return nil, fmt.Errorf("invalid shard backend: %s (expected one of: memory, bolt, redis, raft)", backend)
		}

		shards = append(shards, ServerShard{ShardID: shardID, Backend: backend})
	}
	return shards, nil
}

// --------------------------------------------------------------------------
// Socket configuration (tcp and unix transports)
// --------------------------------------------------------------------------

// SocketConfig holds the connection options of the socket transports.
// Zero values keep the operating system defaults.
type SocketConfig struct {
	// WriteBufferSize and ReadBufferSize set the kernel socket buffers in bytes
	WriteBufferSize int
	ReadBufferSize  int

	// TCPNoDelay disables Nagle's algorithm (tcp only)
	TCPNoDelay bool
	// TCPKeepAliveSec enables TCP keep-alive messages with this period (tcp only)
	TCPKeepAliveSec int
	// TCPLingerSec sets SO_LINGER, values <= 0 keep the default (tcp only)
	TCPLingerSec int
}

func (c *SocketConfig) addFields(addField func(name, value string)) {
	addField("Write Buffer", bufferSize(c.WriteBufferSize))
	addField("Read Buffer", bufferSize(c.ReadBufferSize))
	addField("TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
	if c.TCPKeepAliveSec > 0 {
		addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	} else {
		addField("TCP Keep Alive", "default")
	}
	if c.TCPLingerSec > 0 {
		addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPLingerSec))
	} else {
		addField("TCP Linger", "default")
	}
}

func bufferSize(n int) string {
	if n <= 0 {
		return "default"
	}
	return fmt.Sprintf("%d bytes", n)
}

// ServerConfig holds all configuration parameters of a wbKV server.
type ServerConfig struct {
	// the shards served by this node
	Shards []ServerShard

	// write-behind settings, shared by all shards (the name is set per shard)
	WriteBehind writebehind.Config

	// backend parameters
	MemoryShards  int
	BoltDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Dragonboat parameters (raft backend only)
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// backend and shutdown timeout
	TimeoutSecond int64

	// transport settings, Endpoint is an address for http and tcp and a
	// socket path for unix
	Transport string
	Endpoint  string
	// WorkersPerConnection bounds the requests served in parallel on one
	// socket connection (tcp and unix only)
	WorkersPerConnection int
	Socket               SocketConfig

	// Logging configuration
	LogLevel string
}

// Timeout returns TimeoutSecond as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// HasBackend checks if any shard uses the given backend
func (c *ServerConfig) HasBackend(backend ShardBackendType) bool {
	for _, shard := range c.Shards {
		if shard.Backend == backend {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Transport", c.Transport)
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.Transport == "tcp" || c.Transport == "unix" {
		addField("Workers Per Conn", strconv.Itoa(max(1, c.WorkersPerConnection)))
		c.Socket.addFields(addField)
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Backend))
	}

	sb.WriteString("\n")
	sb.WriteString(c.WriteBehind.String())

	if c.HasBackend(ShardBackendMemory) {
		addSection("Memory Backend")
		addField("Shards", strconv.Itoa(c.MemoryShards))
	}

	if c.HasBackend(ShardBackendBolt) {
		addSection("Bolt Backend")
		addField("Directory", c.BoltDir)
	}

	if c.HasBackend(ShardBackendRedis) {
		addSection("Redis Backend")
		addField("Address", c.RedisAddr)
		addField("Database", strconv.Itoa(c.RedisDB))
	}

	if c.HasBackend(ShardBackendRaft) {
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Data Directory", c.DataDir)

		sb.WriteString("  Initial Cluster Members:\n")
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport     string
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int

	// socket transports only
	ConnectionsPerEndpoint int
	Socket                 SocketConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Transport", c.Transport)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	if c.Transport == "tcp" || c.Transport == "unix" {
		addField("Conns Per Endpoint", strconv.Itoa(max(1, c.ConnectionsPerEndpoint)))
		c.Socket.addFields(addField)
	}

	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
