//go:build linux || darwin

package infra

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// SystemDialer creates operating system sockets in non-blocking mode.
type SystemDialer struct{}

// NewSystemDialer returns a Dialer backed by socket(2).
func NewSystemDialer() *SystemDialer {
	return &SystemDialer{}
}

// UDP returns a non-blocking datagram socket.
func (d *SystemDialer) UDP() (Socket, error) {
	return newSocket(unix.SOCK_DGRAM)
}

// TCP returns a non-blocking stream socket.
func (d *SystemDialer) TCP() (Socket, error) {
	s, err := newSocket(unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set TCP_NODELAY: %w", err)
	}
	return s, nil
}

type sysSocket struct {
	fd int
}

func newSocket(typ int) (*sysSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, typ, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set non-blocking mode: %w", err)
	}
	return &sysSocket{fd: fd}, nil
}

func (s *sysSocket) Connect(addr netip.AddrPort) error {
	if s.fd < 0 {
		return ErrSocketClosed
	}
	if !addr.Addr().Is4() {
		return fmt.Errorf("connect %s: only IPv4 addresses are supported", addr)
	}

	sa := &unix.SockaddrInet4{Port: int(addr.Port()), Addr: addr.Addr().As4()}
	err := unix.Connect(s.fd, sa)
	if err == nil || errors.Is(err, unix.EINPROGRESS) {
		return nil
	}
	return fmt.Errorf("connect %s: %w", addr, err)
}

func (s *sysSocket) Send(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, ErrSocketClosed
	}
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return 0, classify("send", err)
	}
	return n, nil
}

func (s *sysSocket) Recv(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, ErrSocketClosed
	}
	n, err := unix.Read(s.fd, p)
	if err != nil {
		return 0, classify("recv", err)
	}
	return n, nil
}

func (s *sysSocket) Readable() (bool, error) {
	return s.probe(unix.POLLIN)
}

func (s *sysSocket) Writable() (bool, error) {
	return s.probe(unix.POLLOUT)
}

// probe polls the descriptor with a zero timeout. Error and hang-up
// conditions count as ready so that the following call surfaces them.
func (s *sysSocket) probe(events int16) (bool, error) {
	if s.fd < 0 {
		return false, ErrSocketClosed
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return fds[0].Revents&(events|unix.POLLERR|unix.POLLHUP) != 0, nil
}

func (s *sysSocket) PendingError() error {
	if s.fd < 0 {
		return ErrSocketClosed
	}
	v, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt SO_ERROR: %w", err)
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

func (s *sysSocket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		return ErrWouldBlock
	case errors.Is(err, unix.ECONNRESET):
		return fmt.Errorf("%s: %w", op, ErrConnReset)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
