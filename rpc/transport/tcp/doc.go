// Package tcp implements the socket transport over TCP. It provides the
// connectors for the base package, which holds framing, connection pooling
// and request correlation.
//
// Endpoints are host:port pairs, a leading scheme such as "tcp://" is ignored. The socket
// options of common.SocketConfig (TCP_NODELAY, buffer sizes, keep-alive and
// linger) are applied to every connection on both sides.
//
// The server reads requests into pooled buffers of 512 KB; larger requests
// get a buffer of their own.
package tcp
