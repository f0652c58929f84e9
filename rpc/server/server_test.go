package server

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/wbKV/lib/backend/boltstore"
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/serializer"
	"github.com/ValentinKolb/wbKV/rpc/transport"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// nopTransport records the registered functions, requests are injected via RPCServer.handle
type nopTransport struct {
	handler transport.ServerHandleFunc
	metrics transport.MetricsWriteFunc
}

func (t *nopTransport) RegisterHandler(h transport.ServerHandleFunc) { t.handler = h }
func (t *nopTransport) RegisterMetrics(m transport.MetricsWriteFunc) { t.metrics = m }
func (t *nopTransport) Listen(common.ServerConfig) error             { return nil }
func (t *nopTransport) Shutdown(context.Context) error               { return nil }

var testSerializer = serializer.NewBinarySerializer()

func testConfig(t *testing.T, shards string) common.ServerConfig {
	t.Helper()
	parsed, err := common.ParseServerShards(shards)
	if err != nil {
		t.Fatal(err)
	}
	wb := writebehind.DefaultConfig()
	wb.MaxWriteDelay = 5 * time.Millisecond
	return common.ServerConfig{
		Shards:        parsed,
		WriteBehind:   wb,
		MemoryShards:  4,
		BoltDir:       t.TempDir(),
		TimeoutSecond: 5,
		LogLevel:      "error",
	}
}

func startServer(t *testing.T, config common.ServerConfig) (*RPCServer, *nopTransport) {
	t.Helper()
	tr := &nopTransport{}
	s := NewRPCServer(config, tr, testSerializer)
	if err := s.Start(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, tr
}

func call(t *testing.T, tr *nopTransport, shard uint64, req *common.Message) common.Message {
	t.Helper()
	data, err := testSerializer.Serialize(*req)
	if err != nil {
		t.Fatal(err)
	}
	var resp common.Message
	if err := testSerializer.Deserialize(tr.handler(shard, data), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestShardBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	config := testConfig(t, "1=memory,2=bolt,3=redis")
	config.RedisAddr = mr.Addr()
	_, tr := startServer(t, config)

	for _, shard := range []uint64{1, 2, 3} {
		if resp := call(t, tr, shard, common.NewWriteRequest("k", []byte("v"))); resp.Err != "" {
			t.Fatalf("shard %d write: %s", shard, resp.Err)
		}
		resp := call(t, tr, shard, common.NewLoadRequest("k"))
		if !resp.Ok || string(resp.Value) != "v" {
			t.Errorf("shard %d: unexpected load response %+v", shard, resp)
		}
		if resp := call(t, tr, shard, common.NewFlushRequest()); resp.Err != "" {
			t.Fatalf("shard %d flush: %s", shard, resp.Err)
		}
	}

	if got, err := mr.Get("wbkv:3:k"); err != nil || got != "v" {
		t.Errorf("redis backend holds %q (%v)", got, err)
	}
}

func TestBulkMessages(t *testing.T) {
	_, tr := startServer(t, testConfig(t, "1=memory"))

	resp := call(t, tr, 1, common.NewWriteAllRequest([]common.KV{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "c", Value: []byte("3")},
	}))
	if resp.Err != "" {
		t.Fatal(resp.Err)
	}
	if resp := call(t, tr, 1, common.NewDeleteAllRequest([]string{"b"})); resp.Err != "" {
		t.Fatal(resp.Err)
	}

	resp = call(t, tr, 1, common.NewLoadAllRequest([]string{"a", "b", "c", "d"}))
	if resp.Err != "" {
		t.Fatal(resp.Err)
	}
	got := map[string]string{}
	for _, e := range resp.Entries {
		got[e.Key] = string(e.Value)
	}
	if diff := cmp.Diff(map[string]string{"a": "1", "c": "3"}, got); diff != "" {
		t.Errorf("LoadAll mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestErrors(t *testing.T) {
	_, tr := startServer(t, testConfig(t, "1=memory"))

	resp := call(t, tr, 99, common.NewLoadRequest("k"))
	if resp.MsgType != common.MsgTError || !strings.Contains(resp.Err, "shard 99 not found") {
		t.Errorf("unexpected response for unknown shard: %+v", resp)
	}

	var garbage common.Message
	if err := testSerializer.Deserialize(tr.handler(1, []byte{1}), &garbage); err != nil {
		t.Fatal(err)
	}
	if garbage.MsgType != common.MsgTError || !strings.Contains(garbage.Err, "deserialize") {
		t.Errorf("unexpected response for garbage: %+v", garbage)
	}

	resp = call(t, tr, 1, &common.Message{MsgType: common.MsgTSuccess})
	if resp.MsgType != common.MsgTError {
		t.Errorf("expected an error for an unsupported type, got %+v", resp)
	}
}

func TestStopDrainsIntoBackend(t *testing.T) {
	config := testConfig(t, "7=bolt")
	config.WriteBehind.MaxWriteDelay = time.Hour
	config.WriteBehind.BatchSize = 1000
	s, tr := startServer(t, config)

	for _, key := range []string{"x", "y", "z"} {
		if resp := call(t, tr, 7, common.NewWriteRequest(key, []byte(key+key))); resp.Err != "" {
			t.Fatal(resp.Err)
		}
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	store, err := boltstore.New(boltstore.Config{Path: filepath.Join(config.BoltDir, "shard-7.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	values, err := store.LoadAll([]string{"x", "y", "z"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]byte{"x": []byte("xx"), "y": []byte("yy"), "z": []byte("zz")}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("backend state after stop (-want +got):\n%s", diff)
	}
}

func TestMetrics(t *testing.T) {
	_, tr := startServer(t, testConfig(t, "1=memory,2=memory"))
	call(t, tr, 1, common.NewWriteRequest("k", []byte("v")))

	var buf bytes.Buffer
	tr.metrics(&buf)
	for _, want := range []string{`queue="shard-1"`, `queue="shard-2"`, "wbkv_queue_enqueued_total"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %q in metrics:\n%s", want, buf.String())
		}
	}
}

func TestInitFailures(t *testing.T) {
	config := testConfig(t, "1=memory")
	config.LogLevel = "chatty"
	if err := NewRPCServer(config, &nopTransport{}, testSerializer).Start(); err == nil {
		t.Error("expected an error for an invalid log level")
	}

	config = testConfig(t, "1=memory")
	config.WriteBehind.BatchSize = 0
	if err := NewRPCServer(config, &nopTransport{}, testSerializer).Start(); err == nil {
		t.Error("expected an error for an invalid write-behind config")
	}

	config = testConfig(t, "1=redis")
	if err := NewRPCServer(config, &nopTransport{}, testSerializer).Start(); err == nil {
		t.Error("expected an error for a redis shard without address")
	}
}

// --------------------------------------------------------------------------
// Adapter
// --------------------------------------------------------------------------

// stubStore fails every write with err and blocks Flush until ctx is done
type stubStore struct {
	loaderwriter.ILoaderWriter[string, []byte]
	err error
}

func (s stubStore) Write(string, []byte) error { return s.err }

func (s stubStore) Flush(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAdapterErrorCodes(t *testing.T) {
	adapter := NewLoaderWriterServerAdapter(10 * time.Millisecond)
	store := stubStore{err: loaderwriter.ErrQueueFull}

	resp := adapter.Handle(common.NewWriteRequest("k", nil), store)
	if loaderwriter.RetCode(resp.Code) != loaderwriter.RetCQueueFull {
		t.Errorf("expected queue full code, got %+v", resp)
	}

	resp = adapter.Handle(common.NewFlushRequest(), store)
	if loaderwriter.RetCode(resp.Code) != loaderwriter.RetCTimeout {
		t.Errorf("expected timeout code, got %+v", resp)
	}

	if resp := adapter.Handle(common.NewLoadRequest("k"), nil); resp.MsgType != common.MsgTError {
		t.Errorf("expected an error for a nil store, got %+v", resp)
	}

}
