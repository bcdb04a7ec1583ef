package fetch

import (
	"errors"
	"fmt"

	"github.com/mpersano/kasui/internal/infra"
)

type writing struct {
	sock    infra.Socket
	buf     []byte
	written int
}

func (s *writing) name() string { return "writing" }

func (s *writing) close() error { return closeSocket(&s.sock) }

// formatRequest renders the request head. An empty acceptEncoding omits the header.
func formatRequest(t Target, userAgent, acceptEncoding string) []byte {
	req := fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\nUser-Agent: %s\r\n", t.Path, t.HostHeader(), userAgent)
	if acceptEncoding != "" {
		req += "Accept-Encoding: " + acceptEncoding + "\r\n"
	}
	return []byte(req + "\r\n")
}

func (r *Request) startWriting(sock infra.Socket) {
	acceptEncoding := ""
	if r.client.opts.DecodeBody {
		acceptEncoding = infra.AcceptEncoding
	}

	r.timing.StartWrite()
	r.enter(&writing{
		sock: sock,
		buf:  formatRequest(r.target, r.client.opts.UserAgent, acceptEncoding),
	})
}

func (r *Request) pollWriting(s *writing) {
	writable, err := s.sock.Writable()
	if err != nil {
		r.fail(CodeWrite, "failed to poll socket", err)
		return
	}
	if !writable {
		return
	}

	n, err := s.sock.Send(s.buf[s.written:])
	if errors.Is(err, infra.ErrWouldBlock) {
		return
	}
	if err != nil {
		r.fail(CodeWrite, "failed to send request", err)
		return
	}

	s.written += n
	if s.written < len(s.buf) {
		return
	}

	r.timing.EndWrite()
	sock := s.sock
	s.sock = nil
	r.startReading(sock)
}
