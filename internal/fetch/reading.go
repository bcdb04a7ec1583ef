package fetch

import (
	"errors"

	"github.com/mpersano/kasui/internal/infra"
)

const readBufferSize = 4096

type reading struct {
	sock      infra.Socket
	buf       []byte
	parser    responseParser
	firstByte bool
}

func (s *reading) name() string { return "reading" }

func (s *reading) close() error { return closeSocket(&s.sock) }

func (r *Request) startReading(sock infra.Socket) {
	r.enter(&reading{
		sock: sock,
		buf:  make([]byte, readBufferSize),
	})
}

// pollReading drains the socket while it stays readable. HTTP/1.0 has no
// end marker here: the peer closing or resetting the connection ends the body.
func (r *Request) pollReading(s *reading) {
	for {
		readable, err := s.sock.Readable()
		if err != nil {
			r.fail(CodeRead, "failed to poll socket", err)
			return
		}
		if !readable {
			return
		}

		n, err := s.sock.Recv(s.buf)
		switch {
		case errors.Is(err, infra.ErrWouldBlock):
			return
		case errors.Is(err, infra.ErrConnReset):
			r.finishResponse(s)
			return
		case err != nil:
			r.fail(CodeRead, "failed to read response", err)
			return
		case n == 0:
			r.finishResponse(s)
			return
		}

		if !s.firstByte {
			s.firstByte = true
			r.timing.MarkTTFB()
		}
		if err := s.parser.feed(s.buf[:n]); err != nil {
			r.fail(CodeInvalidResponse, "failed to parse response", err)
			return
		}
	}
}

func (r *Request) finishResponse(s *reading) {
	r.timing.EndDownload()

	body := s.parser.body
	if encoding := s.parser.header["content-encoding"]; r.client.opts.DecodeBody && encoding != "" {
		decoded, err := infra.Decompress(body, encoding)
		if err != nil {
			r.fail(CodeDecompression, "failed to decode body", err)
			return
		}
		body = decoded.Data
	}

	r.complete(s.parser.status, s.parser.header, body)
}
