package fetch

import (
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/mpersano/kasui/internal/infra"
)

type connecting struct {
	sock    infra.Socket
	addrs   []netip.Addr
	next    int
	started time.Time
}

func (s *connecting) name() string { return "connecting" }

func (s *connecting) close() error { return closeSocket(&s.sock) }

func (s *connecting) current() netip.Addr { return s.addrs[s.next] }

func (r *Request) startConnecting(addrs []netip.Addr) {
	r.timing.StartConnect()
	s := &connecting{addrs: addrs}
	r.enter(s)
	r.dial(s)
}

// dial opens a fresh socket to the address at s.next.
func (r *Request) dial(s *connecting) {
	if err := s.close(); err != nil {
		r.logger.Debug("Failed to close socket", zap.Error(err))
	}

	sock, err := r.client.dialer.TCP()
	if err != nil {
		r.fail(CodeSocket, "failed to create TCP socket", err)
		return
	}
	s.sock = sock
	s.started = r.client.now()

	addr := netip.AddrPortFrom(s.current(), uint16(r.target.Port))
	r.logger.Debug("Connecting", zap.Stringer("addr", addr))
	if err := sock.Connect(addr); err != nil {
		r.connectFailed(s, CodeConnect, err)
	}
}

// connectFailed moves on to the next resolved address, or fails the
// request when none is left.
func (r *Request) connectFailed(s *connecting, code string, err error) {
	addr := netip.AddrPortFrom(s.current(), uint16(r.target.Port))
	if s.next+1 < len(s.addrs) {
		r.logger.Debug("Connect failed, trying next address", zap.Stringer("addr", addr), zap.Error(err))
		s.next++
		r.dial(s)
		return
	}
	r.fail(code, fmt.Sprintf("failed to connect to %s", addr), err)
}

func (r *Request) pollConnecting(s *connecting) {
	writable, err := s.sock.Writable()
	if err != nil {
		r.connectFailed(s, CodeConnect, err)
		return
	}
	if !writable {
		if r.client.now().Sub(s.started) > r.client.opts.ConnectTimeout {
			r.connectFailed(s, CodeConnectTimeout, nil)
		}
		return
	}

	if err := s.sock.PendingError(); err != nil {
		r.connectFailed(s, CodeConnect, err)
		return
	}

	r.timing.EndConnect()
	r.serverIP = s.current()

	sock := s.sock
	s.sock = nil
	r.startWriting(sock)
}
