//go:build linux || darwin

package fetch

import (
	"bytes"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mpersano/kasui/internal/infra"
)

// startDNSServer answers every A question with 127.0.0.1 and counts queries.
func startDNSServer(t *testing.T) (netip.AddrPort, *atomic.Int32) {
	t.Helper()

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	var queries atomic.Int32
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			queries.Add(1)
			reply := new(dns.Msg)
			reply.SetReply(req)
			for _, q := range req.Question {
				if q.Qtype != dns.TypeA {
					continue
				}
				reply.Answer = append(reply.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.IPv4(127, 0, 0, 1),
				})
			}
			_ = w.WriteMsg(reply)
		}),
		NotifyStartedFunc: func() { close(started) },
	}

	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return netip.MustParseAddrPort(pc.LocalAddr().String()), &queries
}

// startHTTPServer serves HTTP/1.0 responses and closes each connection
// after writing, recording the request heads it received.
func startHTTPServer(t *testing.T, response string) (int, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	heads := make(chan string, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				var head bytes.Buffer
				buf := make([]byte, 512)
				for !bytes.Contains(head.Bytes(), []byte("\r\n\r\n")) {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					head.Write(buf[:n])
				}
				heads <- head.String()
				_, _ = conn.Write([]byte(response))
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, heads
}

func pollLive(t *testing.T, req *Request) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for req.Poll() {
		if time.Now().After(deadline) {
			req.Close()
			t.Fatal("request did not finish in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestIntegration_ResolveConnectFetch(t *testing.T) {
	resolver, queries := startDNSServer(t)
	port, heads := startHTTPServer(t, "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nalice 1200\nbob 900\n")

	c := NewClient(Options{
		Resolver: resolver,
		Dialer:   infra.NewSystemDialer(),
		Logger:   zaptest.NewLogger(t),
	})

	rec := &recorder{}
	req := c.NewRequest()
	url := "http://scores.test:" + strconv.Itoa(port) + "/top"
	require.True(t, req.Get(url, rec.callback))
	pollLive(t, req)

	require.Equal(t, 1, rec.calls)
	res := rec.last()
	require.NoError(t, res.Err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "alice 1200\nbob 900\n", string(res.Body))
	assert.Equal(t, "text/plain", res.Header["content-type"])
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), res.ServerIP)
	assert.Equal(t, int32(1), queries.Load())

	head := <-heads
	assert.Equal(t, "GET /top HTTP/1.0\r\nHost: scores.test:"+strconv.Itoa(port)+"\r\nUser-Agent: kasui/1.0\r\n\r\n", head)

	again := c.NewRequest()
	require.True(t, again.Get(url, rec.callback))
	pollLive(t, again)

	require.Equal(t, 2, rec.calls)
	assert.True(t, rec.last().FromCache)
	assert.Equal(t, int32(1), queries.Load())
}

func TestIntegration_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := NewClient(Options{Dialer: infra.NewSystemDialer(), Logger: zaptest.NewLogger(t)})
	rec := &recorder{}
	req := c.NewRequest()
	require.True(t, req.Get("http://127.0.0.1:"+strconv.Itoa(port)+"/", rec.callback))
	pollLive(t, req)

	require.Equal(t, 1, rec.calls)
	requireErrorCode(t, rec.last(), CodeConnect)
}
