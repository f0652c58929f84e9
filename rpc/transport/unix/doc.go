// Package unix implements the socket transport over Unix domain sockets for
// clients on the same machine as the server. Framing, connection pooling and
// request correlation come from the base package.
//
// The endpoint is the path of the socket file. The server removes a stale
// socket left at the path by an earlier run, but refuses to replace any
// other kind of file. Of common.SocketConfig only the buffer sizes apply.
//
// The server reads requests into pooled buffers of 64 KB.
package unix
