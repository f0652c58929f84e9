package tcp

import (
	"net"
	"strings"
	"time"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/transport/base"
	"github.com/rotisserie/eris"
)

const (
	defaultBufferSize = 512 * 1024 // 512 KB
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", address(config.Endpoint))
	if err != nil {
		return nil, eris.Wrap(err, "failed to create TCP socket")
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return applySocketOptions(conn, config.Socket)
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a TCP server transport with the default read buffer size
func NewTCPServerTransport() *base.ServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, defaultBufferSize)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// address accepts endpoints written as URLs (tcp://host:port), the scheme
// is dropped
func address(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	return strings.TrimSuffix(endpoint, "/")
}

// applySocketOptions applies the TCP options of config to conn. Connections
// that are not TCP connections are left as they are.
func applySocketOptions(conn net.Conn, config common.SocketConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tcpConn.SetNoDelay(config.TCPNoDelay); err != nil {
		return eris.Wrap(err, "could not set TCP_NODELAY")
	}
	if config.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return eris.Wrap(err, "could not set write buffer")
		}
	}
	if config.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return eris.Wrap(err, "could not set read buffer")
		}
	}
	if config.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return eris.Wrap(err, "could not enable keep-alive")
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(config.TCPKeepAliveSec) * time.Second); err != nil {
			return eris.Wrap(err, "could not set keep-alive period")
		}
	}
	if config.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(config.TCPLingerSec); err != nil {
			return eris.Wrap(err, "could not set linger")
		}
	}
	return nil
}
