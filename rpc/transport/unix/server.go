package unix

import (
	"errors"
	"io/fs"
	"net"
	"os"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/transport/base"
	"github.com/rotisserie/eris"
)

const (
	defaultBufferSize = 64 * 1024 // 64 KB
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

// Listen removes a stale socket file left at the path and listens on it.
// Any other kind of file at the path is an error.
func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Endpoint

	info, err := os.Lstat(socketPath)
	switch {
	case err == nil && info.Mode()&fs.ModeSocket == 0:
		return nil, eris.Errorf("%s exists and is not a socket", socketPath)
	case err == nil:
		if err := os.Remove(socketPath); err != nil {
			return nil, eris.Wrap(err, "failed to remove existing socket")
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, eris.Wrapf(err, "could not inspect %s", socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create Unix socket")
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return applySocketOptions(conn, config.Socket)
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixServerTransport creates a Unix server transport with the default read buffer size
func NewUnixServerTransport() *base.ServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, defaultBufferSize)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// applySocketOptions sets the socket buffer sizes, the TCP options of config
// do not apply to Unix sockets
func applySocketOptions(conn net.Conn, config common.SocketConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if config.WriteBufferSize > 0 {
		if err := unixConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return eris.Wrap(err, "could not set write buffer")
		}
	}
	if config.ReadBufferSize > 0 {
		if err := unixConn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return eris.Wrap(err, "could not set read buffer")
		}
	}
	return nil
}
