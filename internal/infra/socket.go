package infra

import (
	"errors"
	"net/netip"
)

var (
	// ErrWouldBlock reports that a non-blocking call could not make progress yet.
	ErrWouldBlock = errors.New("operation would block")
	// ErrConnReset reports that the peer reset the connection.
	ErrConnReset = errors.New("connection reset by peer")
	// ErrSocketClosed is returned for operations on a closed socket.
	ErrSocketClosed = errors.New("socket closed")
)

// Socket is a non-blocking IPv4 endpoint. No method ever waits: calls that
// cannot make progress return ErrWouldBlock, and the readiness probes use a
// zero timeout.
type Socket interface {
	// Connect starts connecting to addr. A connection still in progress is not an error.
	Connect(addr netip.AddrPort) error

	// Send writes as much of p as the socket accepts.
	Send(p []byte) (int, error)

	// Recv reads into p. Zero bytes with a nil error means the peer closed the connection.
	Recv(p []byte) (int, error)

	// Readable reports whether a Recv would return without blocking.
	Readable() (bool, error)

	// Writable reports whether a Send would return without blocking.
	Writable() (bool, error)

	// PendingError returns and clears the socket's pending error.
	PendingError() error

	// Close releases the socket. It is safe to call more than once.
	Close() error
}

// Dialer creates non-blocking sockets.
type Dialer interface {
	// UDP returns a datagram socket.
	UDP() (Socket, error)

	// TCP returns a stream socket.
	TCP() (Socket, error)
}
