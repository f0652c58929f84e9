package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
)

func TestMessageTypeJSON(t *testing.T) {
	for msgType := MsgTSuccess; msgType <= MsgTLWFlush; msgType++ {
		data, err := json.Marshal(msgType)
		if err != nil {
			t.Fatalf("marshal %s: %v", msgType, err)
		}
		var got MessageType
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != msgType {
			t.Errorf("expected %s, got %s", msgType, got)
		}
	}

	var unknown MessageType
	if err := json.Unmarshal([]byte(`"setE"`), &unknown); err == nil {
		t.Error("expected an error for an unknown message type")
	}
}

func TestResponseCarriesErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("enqueue: %w", loaderwriter.ErrQueueFull)

	resp := NewWriteResponse(wrapped)
	if resp.Code != uint64(loaderwriter.RetCQueueFull) {
		t.Errorf("expected code %d, got %d", loaderwriter.RetCQueueFull, resp.Code)
	}
	if resp.Err != wrapped.Error() {
		t.Errorf("unexpected message %q", resp.Err)
	}

	plain := NewDeleteResponse(errors.New("disk on fire"))
	if plain.Code != 0 || plain.Err != "disk on fire" {
		t.Errorf("unexpected response %+v", plain)
	}

	ok := NewFlushResponse(nil)
	if ok.Code != 0 || ok.Err != "" {
		t.Errorf("unexpected response %+v", ok)
	}
}

func TestNewLoadAllResponse(t *testing.T) {
	resp := NewLoadAllResponse(map[string][]byte{"a": []byte("1"), "b": {}}, nil)
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}
	if empty := NewLoadAllResponse(map[string][]byte{}, nil); empty.Entries != nil {
		t.Errorf("expected no entries, got %v", empty.Entries)
	}
}

func TestParseServerShards(t *testing.T) {
	shards, err := ParseServerShards("100=memory, 200 = bolt,300=redis,400=raft")
	if err != nil {
		t.Fatal(err)
	}
	want := []ServerShard{
		{100, ShardBackendMemory},
		{200, ShardBackendBolt},
		{300, ShardBackendRedis},
		{400, ShardBackendRaft},
	}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %d", len(want), len(shards))
	}
	for i := range want {
		if shards[i] != want[i] {
			t.Errorf("shard %d: expected %+v, got %+v", i, want[i], shards[i])
		}
	}

	for _, bad := range []string{"", "100", "abc=memory", "100=lstore", "100=memory,100=bolt"} {
		if _, err := ParseServerShards(bad); err == nil {
			t.Errorf("expected an error for %q", bad)
		}
	}
}

func TestServerConfigString(t *testing.T) {
	c := ServerConfig{
		Shards:         []ServerShard{{1, ShardBackendMemory}, {2, ShardBackendRaft}},
		Endpoint:       "0.0.0.0:8080",
		ReplicaID:      7,
		ClusterMembers: map[uint64]string{7: "localhost:63001"},
	}
	s := c.String()
	for _, want := range []string{"RPC SERVER", "MEMORY BACKEND", "RAFT PARAMETERS", "localhost:63001", "WRITE-BEHIND"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in:\n%s", want, s)
		}
	}
	if strings.Contains(s, "BOLT BACKEND") {
		t.Errorf("unused backend printed:\n%s", s)
	}
}

func TestSocketOptionsPrintedForSocketTransports(t *testing.T) {
	server := ServerConfig{Transport: "tcp", Endpoint: ":8080", Socket: SocketConfig{TCPNoDelay: true}}
	s := server.String()
	for _, want := range []string{"Workers Per Conn", "TCP No Delay", "true"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in:\n%s", want, s)
		}
	}

	client := ClientConfig{Transport: "http", Endpoints: []string{"localhost:8080"}}
	if s := client.String(); strings.Contains(s, "Conns Per Endpoint") {
		t.Errorf("socket options printed for http:\n%s", s)
	}
	client.Transport = "unix"
	if s := client.String(); !strings.Contains(s, "Conns Per Endpoint") {
		t.Errorf("expected socket options for unix:\n%s", s)
	}
}
