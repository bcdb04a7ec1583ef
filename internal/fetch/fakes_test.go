package fetch

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/mpersano/kasui/internal/infra"
)

const testQueryID = 0x4b41

var testResolver = netip.MustParseAddrPort("192.0.2.53:53")

// recvStep is one scripted outcome of Recv.
type recvStep struct {
	data []byte
	err  error
}

// scriptSocket is an infra.Socket whose behaviour is scripted by the test.
type scriptSocket struct {
	connectErr    error
	connectedTo   []netip.AddrPort
	writableAfter int
	writableCalls int
	pendingErr    error
	sendLimit     int
	sendErr       error
	sends         int
	sent          bytes.Buffer
	recv          []recvStep
	closed        bool
}

func (s *scriptSocket) Connect(addr netip.AddrPort) error {
	s.connectedTo = append(s.connectedTo, addr)
	return s.connectErr
}

func (s *scriptSocket) Send(p []byte) (int, error) {
	if s.sendErr != nil {
		return 0, s.sendErr
	}
	n := len(p)
	if s.sendLimit > 0 && n > s.sendLimit {
		n = s.sendLimit
	}
	s.sends++
	s.sent.Write(p[:n])
	return n, nil
}

func (s *scriptSocket) Recv(p []byte) (int, error) {
	if len(s.recv) == 0 {
		return 0, infra.ErrWouldBlock
	}
	step := s.recv[0]
	s.recv = s.recv[1:]
	if step.err != nil {
		return 0, step.err
	}
	return copy(p, step.data), nil
}

func (s *scriptSocket) Readable() (bool, error) {
	return len(s.recv) > 0, nil
}

func (s *scriptSocket) Writable() (bool, error) {
	s.writableCalls++
	return s.writableCalls > s.writableAfter, nil
}

func (s *scriptSocket) PendingError() error {
	return s.pendingErr
}

func (s *scriptSocket) Close() error {
	s.closed = true
	return nil
}

// closedAfter appends the steps of a peer that sends chunks and then closes.
func (s *scriptSocket) closedAfter(chunks ...string) *scriptSocket {
	for _, c := range chunks {
		s.recv = append(s.recv, recvStep{data: []byte(c)})
	}
	s.recv = append(s.recv, recvStep{})
	return s
}

// fakeDialer hands out queued sockets and counts every socket it creates.
type fakeDialer struct {
	udp      []*scriptSocket
	tcp      []*scriptSocket
	udpCount int
	tcpCount int
	udpErr   error
	tcpErr   error
}

func (d *fakeDialer) UDP() (infra.Socket, error) {
	if d.udpErr != nil {
		return nil, d.udpErr
	}
	d.udpCount++
	return pop(&d.udp), nil
}

func (d *fakeDialer) TCP() (infra.Socket, error) {
	if d.tcpErr != nil {
		return nil, d.tcpErr
	}
	d.tcpCount++
	return pop(&d.tcp), nil
}

func pop(queue *[]*scriptSocket) *scriptSocket {
	if len(*queue) == 0 {
		return &scriptSocket{}
	}
	s := (*queue)[0]
	*queue = (*queue)[1:]
	return s
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestClient(d *fakeDialer, clk *fakeClock, mutate ...func(*Options)) *Client {
	opts := DefaultOptions()
	opts.Resolver = testResolver
	opts.Dialer = d
	opts.Now = clk.Now
	opts.QueryID = func() uint16 { return testQueryID }
	for _, m := range mutate {
		m(&opts)
	}
	return NewClient(opts)
}

// dnsReply packs a reply to the test query for host with one A record per address.
func dnsReply(t *testing.T, id uint16, host string, addrs ...string) []byte {
	t.Helper()

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(host), dns.TypeA)
	query.Id = id

	reply := new(dns.Msg)
	reply.SetReply(query)
	for _, a := range addrs {
		reply.Answer = append(reply.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: dns.Fqdn(host), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
			A:   net.ParseIP(a),
		})
	}

	packed, err := reply.Pack()
	require.NoError(t, err)
	return packed
}

// recorder counts callback invocations.
type recorder struct {
	calls   int
	results []Result
}

func (r *recorder) callback(res Result) {
	r.calls++
	r.results = append(r.results, res)
}

func (r *recorder) last() Result {
	return r.results[len(r.results)-1]
}

// pollUntilDone polls at most limit times and returns how many polls reported progress.
func pollUntilDone(t *testing.T, req *Request, limit int) int {
	t.Helper()
	for i := 0; i < limit; i++ {
		if !req.Poll() {
			return i
		}
	}
	t.Fatalf("request still running after %d polls", limit)
	return limit
}
