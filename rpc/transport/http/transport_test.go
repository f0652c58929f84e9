package http

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/google/uuid"
)

// newTestServer starts a transport whose handler echoes shard and body
func newTestServer(t *testing.T, debug bool) (*ServerTransport, *httptest.Server) {
	t.Helper()
	st := NewHttpServerTransport()
	st.debug = debug
	st.RegisterHandler(func(shardId uint64, req []byte) []byte {
		return []byte(fmt.Sprintf("%d:%s", shardId, req))
	})
	st.RegisterMetrics(func(w io.Writer) {
		_, _ = io.WriteString(w, "wbkv_test_metric 42\n")
	})
	srv := httptest.NewServer(st.Handler())
	t.Cleanup(srv.Close)
	return st, srv
}

func newTestClient(t *testing.T, endpoints ...string) *httpClientTransport {
	t.Helper()
	c := NewHttpClientTransport().(*httpClientTransport)
	if err := c.Connect(common.ClientConfig{Endpoints: endpoints, TimeoutSecond: 5, RetryCount: 2}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSendRoundTrip(t *testing.T) {
	_, srv := newTestServer(t, false)
	c := newTestClient(t, srv.URL)

	resp, err := c.Send(100, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "100:payload" {
		t.Errorf("unexpected response %q", resp)
	}
}

func TestSendWithoutScheme(t *testing.T) {
	_, srv := newTestServer(t, false)
	c := newTestClient(t, strings.TrimPrefix(srv.URL, "http://")+"/")

	resp, err := c.Send(7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "7:" {
		t.Errorf("unexpected response %q", resp)
	}
}

func TestSendRetriesOnNextEndpoint(t *testing.T) {
	_, good := newTestServer(t, false)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	c := newTestClient(t, deadURL, good.URL)
	for i := 0; i < 4; i++ {
		if _, err := c.Send(1, []byte("x")); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
}

func TestSendReportsHTTPErrors(t *testing.T) {
	_, srv := newTestServer(t, false)
	c := newTestClient(t, srv.URL)
	c.serverURLs[0] = c.serverURLs[0].JoinPath("not-a-shard")

	if _, err := c.Send(1, nil); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected a 404 error, got %v", err)
	}
}

func TestInvalidShardId(t *testing.T) {
	_, srv := newTestServer(t, false)

	resp, err := http.Post(srv.URL+"/abc", "application/octet-stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, srv := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("unexpected health response %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "wbkv_test_metric 42") {
		t.Errorf("registered metrics missing:\n%s", body)
	}
}

func TestDebugRequestID(t *testing.T) {
	_, srv := newTestServer(t, true)

	resp, err := http.Post(srv.URL+"/1", "application/octet-stream", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if _, err := uuid.Parse(resp.Header.Get(RequestIDHeader)); err != nil {
		t.Errorf("expected a uuid request id, got %q", resp.Header.Get(RequestIDHeader))
	}
}

func TestClientNotConnected(t *testing.T) {
	c := NewHttpClientTransport()
	if _, err := c.Send(1, nil); err == nil {
		t.Error("expected an error before Connect")
	}
	if err := c.Connect(common.ClientConfig{}); err == nil {
		t.Error("expected an error without endpoints")
	}
}
