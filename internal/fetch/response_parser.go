package fetch

import (
	"errors"
	"fmt"
	"strings"
)

var errMalformedStatus = errors.New("malformed status line")

type parsePhase int

const (
	beforeStatus parsePhase = iota
	statusDigits
	afterStatus
	headerScan
	inBody
)

// maxStatusDigits bounds the status code; HTTP status codes have three digits.
const maxStatusDigits = 3

// responseParser consumes an HTTP/1.0 response byte by byte, so chunk
// boundaries never matter. The status code is the second space-delimited
// token of the first line; header lines end with "\n" or "\r\n" and a blank
// line starts the body, which runs until the connection closes.
type responseParser struct {
	phase  parsePhase
	status int
	digits int
	line   []byte
	header map[string]string
	body   []byte
}

func (p *responseParser) feed(data []byte) error {
	for i, c := range data {
		switch p.phase {
		case beforeStatus:
			switch c {
			case ' ':
				p.phase = statusDigits
			case '\n':
				return fmt.Errorf("%w: no status code", errMalformedStatus)
			}

		case statusDigits:
			switch {
			case c >= '0' && c <= '9':
				if p.digits == maxStatusDigits {
					return fmt.Errorf("%w: status code too long", errMalformedStatus)
				}
				p.status = p.status*10 + int(c-'0')
				p.digits++
			case c == ' ' && p.digits == 0:
			case (c == ' ' || c == '\r') && p.digits > 0:
				p.phase = afterStatus
			case c == '\n' && p.digits > 0:
				p.phase = headerScan
			default:
				return fmt.Errorf("%w: unexpected %q in status code", errMalformedStatus, c)
			}

		case afterStatus:
			if c == '\n' {
				p.phase = headerScan
			}

		case headerScan:
			switch c {
			case '\r':
			case '\n':
				if len(p.line) == 0 {
					p.phase = inBody
					p.body = append(p.body, data[i+1:]...)
					return nil
				}
				p.addHeader()
				p.line = p.line[:0]
			default:
				p.line = append(p.line, c)
			}

		case inBody:
			p.body = append(p.body, data[i:]...)
			return nil
		}
	}
	return nil
}

func (p *responseParser) addHeader() {
	name, value, ok := strings.Cut(string(p.line), ":")
	if !ok {
		return
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if p.header == nil {
		p.header = make(map[string]string)
	}
	if _, seen := p.header[name]; !seen {
		p.header[name] = strings.TrimSpace(value)
	}
}
