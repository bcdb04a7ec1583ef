package fetch

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mpersano/kasui/internal/infra"
)

type resolving struct {
	sock    infra.Socket
	id      uint16
	query   []byte
	sentAt  time.Time
	retries int
	sends   int
	buf     []byte
}

func (s *resolving) name() string { return "resolving" }

func (s *resolving) close() error { return closeSocket(&s.sock) }

// send transmits the query. A datagram the socket cannot take right now is
// treated like one lost on the wire: the retry timer covers both.
func (s *resolving) send(now time.Time) error {
	s.sentAt = now
	s.sends++
	if _, err := s.sock.Send(s.query); err != nil && !errors.Is(err, infra.ErrWouldBlock) {
		return err
	}
	return nil
}

func (r *Request) startResolving() {
	c := r.client
	r.timing.StartDNS()

	id := c.queryID()
	query, err := infra.BuildQuery(id, r.target.Host)
	if err != nil {
		r.fail(CodeDNS, "failed to build query", err)
		return
	}

	sock, err := c.dialer.UDP()
	if err != nil {
		r.fail(CodeSocket, "failed to create UDP socket", err)
		return
	}

	s := &resolving{
		sock:    sock,
		id:      id,
		query:   query,
		retries: c.opts.DNSRetries,
		buf:     make([]byte, infra.MaxDNSPacketSize()),
	}
	r.enter(s)

	if err := sock.Connect(c.opts.Resolver); err != nil {
		r.fail(CodeDNS, fmt.Sprintf("failed to address resolver %s", c.opts.Resolver), err)
		return
	}
	if err := s.send(c.now()); err != nil {
		r.fail(CodeDNS, "failed to send query", err)
	}
}

func (r *Request) pollResolving(s *resolving) {
	now := r.client.now()

	n, err := s.sock.Recv(s.buf)
	if errors.Is(err, infra.ErrWouldBlock) {
		if now.Sub(s.sentAt) < r.client.opts.DNSTimeout {
			return
		}
		if s.retries == 0 {
			r.fail(CodeDNSTimeout, fmt.Sprintf("no reply after %d queries", s.sends), nil)
			return
		}
		s.retries--
		r.logger.Debug("Resending DNS query", zap.Int("retriesLeft", s.retries))
		if err := s.send(now); err != nil {
			r.fail(CodeDNS, "failed to send query", err)
		}
		return
	}
	if err != nil {
		r.fail(CodeDNS, "failed to receive reply", err)
		return
	}

	addrs, err := infra.ParseAddressAnswers(s.buf[:n], s.id)
	if errors.Is(err, infra.ErrIDMismatch) {
		r.logger.Debug("Ignoring reply to another query")
		return
	}
	if err != nil {
		r.fail(CodeDNS, "invalid reply", err)
		return
	}

	r.timing.EndDNS()
	r.logger.Debug("Resolved host", zap.Stringers("addrs", addrs))
	r.client.cache.Put(r.target.Host, addrs)
	r.startConnecting(addrs)
}
