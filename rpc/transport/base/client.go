package base

import (
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rotisserie/eris"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrClosed is returned by Send after Close.
var ErrClosed = eris.New("transport is closed")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint. A timeout <= 0
	// means no bound.
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

type responseResult struct {
	data []byte
	err  error
}

// link is one established connection and its reader goroutine. Once the
// reader fails, done is closed and every request waiting on the link
// returns err.
type link struct {
	conn    net.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[uint64, chan responseResult]

	once sync.Once
	done chan struct{}
	err  error
}

// slot is one position of the round robin. Its link is replaced lazily
// after it broke.
type slot struct {
	endpoint string
	mu       sync.Mutex
	link     *link
}

// ClientTransport multiplexes requests over ConnectionsPerEndpoint
// connections to every endpoint. Requests are matched to responses by
// request ID, so many requests can share one connection.
//
// Thread-safety: Send is safe for concurrent use. Connect and Close must not
// run concurrently with Send.
type ClientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	timeout   time.Duration
	attempts  int

	slots     []*slot
	next      atomic.Uint64
	requestID atomic.Uint64
	closed    atomic.Bool
}

var _ transport.IRPCClientTransport = (*ClientTransport)(nil)

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a client transport using connector
func NewBaseClientTransport(connector IClientConnector) *ClientTransport {
	return &ClientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *ClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return eris.New("no endpoints provided")
	}
	t.closeSlots()

	t.config = config
	t.timeout = time.Duration(config.TimeoutSecond) * time.Second
	t.attempts = max(1, config.RetryCount)
	t.closed.Store(false)

	perEndpoint := max(1, config.ConnectionsPerEndpoint)
	t.slots = make([]*slot, 0, len(config.Endpoints)*perEndpoint)

	connected := 0
	var lastErr error
	for _, endpoint := range config.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			s := &slot{endpoint: endpoint}
			t.slots = append(t.slots, s)

			// slots that fail here are dialed again on their first use
			if _, err := t.linkOf(s); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, perEndpoint, err)
				lastErr = err
				continue
			}
			connected++
		}
	}

	if connected == 0 {
		return eris.Wrap(lastErr, "failed to connect to any endpoint")
	}
	Logger.Infof("Connected %d of %d connections to %d endpoints using %s transport",
		connected, len(t.slots), len(config.Endpoints), t.connector.GetName())
	return nil
}

func (t *ClientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(t.slots) == 0 {
		return nil, eris.New("transport is not connected")
	}

	var lastErr error
	backoff := 50 * time.Millisecond
	for i := 0; i < t.attempts; i++ {
		s := t.slots[t.next.Add(1)%uint64(len(t.slots))]
		data, err := t.sendOn(s, shardId, req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, t.attempts, s.endpoint, err)

		if t.closed.Load() {
			return nil, ErrClosed
		}
		if i < t.attempts-1 {
			// exponential backoff with +-10% jitter
			time.Sleep(time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64())))
			backoff *= 2
		}
	}
	return nil, eris.Wrapf(lastErr, "request to shard %d failed after %d attempts", shardId, t.attempts)
}

func (t *ClientTransport) Close() error {
	t.closed.Store(true)
	t.closeSlots()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *ClientTransport) closeSlots() {
	for _, s := range t.slots {
		s.mu.Lock()
		if s.link != nil {
			s.link.close(ErrClosed)
			s.link = nil
		}
		s.mu.Unlock()
	}
}

// linkOf returns the live link of s and dials a new one if there is none
func (t *ClientTransport) linkOf(s *slot) (*link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != nil && !s.link.broken() {
		return s.link, nil
	}
	if t.closed.Load() {
		return nil, ErrClosed
	}

	conn, err := t.connector.Connect(s.endpoint, t.timeout)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to connect to %s", s.endpoint)
	}
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		_ = conn.Close()
		return nil, eris.Wrapf(err, "failed to upgrade connection to %s", s.endpoint)
	}

	l := &link{
		conn:    conn,
		pending: xsync.NewMapOf[uint64, chan responseResult](),
		done:    make(chan struct{}),
	}
	go l.read()
	s.link = l
	return l, nil
}

// sendOn sends one request over the link of s and waits for its response
func (t *ClientTransport) sendOn(s *slot, shardId uint64, req []byte) ([]byte, error) {
	l, err := t.linkOf(s)
	if err != nil {
		return nil, err
	}

	requestID := t.requestID.Add(1)
	respCh := make(chan responseResult, 1)
	l.pending.Store(requestID, respCh)
	defer l.pending.Delete(requestID)

	l.writeMu.Lock()
	if t.timeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	}
	err = writeFrame(l.conn, shardId, requestID, req)
	l.writeMu.Unlock()
	if err != nil {
		l.close(eris.Wrap(err, "write failed"))
		return nil, err
	}

	var timeout <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-respCh:
		return res.data, res.err
	case <-l.done:
		// the response may have arrived right before the link broke
		select {
		case res := <-respCh:
			return res.data, res.err
		default:
			return nil, l.err
		}
	case <-timeout:
		return nil, eris.Errorf("request %d timed out after %s", requestID, t.timeout)
	}
}

// read hands responses to their waiting requests until the connection fails
func (l *link) read() {
	for {
		shardID, requestID, data, err := readFrame(l.conn, nil)
		if err != nil {
			l.close(eris.Wrap(err, "connection lost"))
			return
		}
		if respCh, ok := l.pending.LoadAndDelete(requestID); ok {
			respCh <- responseResult{data: data}
		} else {
			Logger.Warningf("Received response for unknown request %d (shard %d)", requestID, shardID)
		}
	}
}

func (l *link) close(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
		_ = l.conn.Close()
	})
}

func (l *link) broken() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
