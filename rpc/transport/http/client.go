package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/transport"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    atomic.Uint32
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	parsedURLs := make([]*url.URL, len(config.Endpoints))
	for i, server := range config.Endpoints {
		server = strings.TrimSpace(server)
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(strings.TrimSuffix(server, "/"))
		if err != nil {
			return err
		}
		parsedURLs[i] = parsedURL
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	t.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.serverURLs = parsedURLs
	t.retryCount = max(1, config.RetryCount)

	return nil
}

func (t *httpClientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	var lastErr error
	for i := 0; i < t.retryCount; i++ {
		// Select the next server via round-robin, retries go to the next endpoint
		idx := t.counter.Add(1) % uint32(len(t.serverURLs))
		requestURL := t.serverURLs[idx].JoinPath(strconv.FormatUint(shardId, 10)).String()

		resp, err := t.post(requestURL, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.serverURLs = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *httpClientTransport) post(requestURL string, req []byte) ([]byte, error) {
	httpResponse, err := t.client.Post(requestURL, "application/octet-stream", bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 512))
		return nil, fmt.Errorf("http error: %s: %s", httpResponse.Status, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(httpResponse.Body)
}
