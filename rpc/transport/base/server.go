package base

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/transport"
	"github.com/rotisserie/eris"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the transport-specific server operations
type IServerConnector interface {
	// Listen creates the listener for config.Endpoint
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Server Transport
// -----------------------------------------------------------

// ServerTransport serves framed requests on the listener of its connector.
// Each connection has one reader goroutine and up to WorkersPerConnection
// request workers; responses carry the request ID of their request and may
// leave in any order.
type ServerTransport struct {
	connector  IServerConnector
	handler    transport.ServerHandleFunc
	bufferPool sync.Pool

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool

	// connection goroutines, Shutdown waits for them
	wg sync.WaitGroup
}

var _ transport.IRPCServerTransport = (*ServerTransport)(nil)

// NewBaseServerTransport creates a server transport. Request payloads up to
// bufferSize bytes are read into pooled buffers.
func NewBaseServerTransport(connector IServerConnector, bufferSize int) *ServerTransport {
	if bufferSize < headerSize {
		bufferSize = headerSize
	}
	return &ServerTransport{
		connector: connector,
		conns:     make(map[net.Conn]struct{}),
		bufferPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *ServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

// RegisterMetrics is a no-op, only the http transport exposes a metrics route.
func (t *ServerTransport) RegisterMetrics(transport.MetricsWriteFunc) {
	Logger.Debugf("%s transport does not expose metrics", t.connector.GetName())
}

func (t *ServerTransport) Listen(config common.ServerConfig) error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	if t.listener != nil {
		t.mu.Unlock()
		return eris.Errorf("%s transport is already listening", t.connector.GetName())
	}
	listener, err := t.connector.Listen(config)
	if err != nil {
		t.mu.Unlock()
		return eris.Wrapf(err, "could not listen on %s", config.Endpoint)
	}
	t.listener = listener
	t.mu.Unlock()

	workers := max(1, config.WorkersPerConnection)
	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), listener.Addr(), workers)

	backoff := 5 * time.Millisecond
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Warningf("Accept error: %v (retrying in %s)", err, backoff)
			time.Sleep(backoff)
			backoff = min(2*backoff, time.Second)
			continue
		}
		backoff = 5 * time.Millisecond

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Could not upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}
		if !t.track(conn) {
			_ = conn.Close()
			return nil
		}
		go t.serve(conn, workers, config.Timeout())
	}
}

// Shutdown stops accepting connections and stops reading new requests.
// Requests already read are answered before their connection is closed,
// unless ctx ends first.
func (t *ServerTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closing = true
	if t.listener != nil {
		_ = t.listener.Close()
	}
	for conn := range t.conns {
		// wakes the reader, in-flight responses can still be written
		_ = conn.SetReadDeadline(time.Now())
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		for conn := range t.conns {
			_ = conn.Close()
		}
		t.mu.Unlock()
		return ctx.Err()
	}
}

// Addr returns the address the transport listens on, nil before Listen.
func (t *ServerTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *ServerTransport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

// track registers conn, it returns false once the transport is shutting down
func (t *ServerTransport) track(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.conns[conn] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *ServerTransport) untrack(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
	_ = conn.Close()
	t.wg.Done()
}

// serve reads requests from one connection until it fails or is closed
func (t *ServerTransport) serve(conn net.Conn, workers int, timeout time.Duration) {
	defer t.untrack(conn)

	// counting semaphore for the workers of this connection
	sem := make(chan struct{}, workers)
	var inflight sync.WaitGroup
	var writeMu sync.Mutex

	respond := func(shardID, requestID uint64, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				Logger.Errorf("Handler for shard %d panicked: %v", shardID, r)
				_ = conn.Close()
			}
		}()

		start := time.Now()
		var resp []byte
		if t.handler != nil {
			resp = t.handler(shardID, data)
		} else {
			Logger.Warningf("No handler registered, answering request %d with an empty frame", requestID)
		}
		Logger.Debugf("Processed request %d for shard %d in %s", requestID, shardID, time.Since(start))

		writeMu.Lock()
		defer writeMu.Unlock()
		if timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		if err := writeFrame(conn, shardID, requestID, resp); err != nil {
			Logger.Warningf("Failed to write response %d: %v", requestID, err)
		}
	}

	for {
		bufp := t.bufferPool.Get().(*[]byte)
		shardID, requestID, data, err := readFrame(conn, *bufp)
		if err != nil {
			t.bufferPool.Put(bufp)
			switch {
			case errors.Is(err, io.EOF):
				Logger.Debugf("Connection from %s closed by client", conn.RemoteAddr())
			case t.isClosing():
				Logger.Debugf("Connection from %s stops reading for shutdown", conn.RemoteAddr())
			default:
				Logger.Warningf("Reading from %s failed: %v", conn.RemoteAddr(), err)
			}
			break
		}

		sem <- struct{}{}
		inflight.Add(1)
		go func() {
			defer func() {
				<-sem
				inflight.Done()
				t.bufferPool.Put(bufp)
			}()
			respond(shardID, requestID, data)
		}()
	}

	inflight.Wait()
}
