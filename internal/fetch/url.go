package fetch

import (
	"strconv"
	"strings"
)

// DefaultPort is used when the URL names no port.
const DefaultPort = 80

const scheme = "http://"

// Target is the parsed form of an http URL.
type Target struct {
	Host string
	Port int
	Path string
}

// HostHeader returns the Host header value: the port is appended only when
// it is not the default.
func (t Target) HostHeader() string {
	if t.Port == DefaultPort {
		return t.Host
	}
	return t.Host + ":" + strconv.Itoa(t.Port)
}

// ParseURL parses http://host[:port][/path]. The path, including any query
// string, is kept verbatim and defaults to "/".
func ParseURL(raw string) (Target, error) {
	rest, ok := strings.CutPrefix(raw, scheme)
	if !ok {
		return Target{}, invalidURL(raw, "scheme must be http")
	}

	authority, path := rest, "/"
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		authority, path = rest[:i], rest[i:]
		if path[0] == '?' {
			path = "/" + path
		}
	}

	host, portText, hasPort := strings.Cut(authority, ":")
	if host == "" {
		return Target{}, invalidURL(raw, "missing host")
	}

	port := DefaultPort
	if hasPort {
		if strings.IndexByte(portText, ':') >= 0 {
			return Target{}, invalidURL(raw, "more than one port separator")
		}
		if portText == "" {
			return Target{}, invalidURL(raw, "empty port")
		}
		port = 0
		for i := 0; i < len(portText); i++ {
			c := portText[i]
			if c < '0' || c > '9' {
				return Target{}, invalidURL(raw, "port is not numeric")
			}
			port = port*10 + int(c-'0')
			if port > 65535 {
				return Target{}, invalidURL(raw, "port out of range")
			}
		}
		if port == 0 {
			return Target{}, invalidURL(raw, "port out of range")
		}
	}

	return Target{Host: host, Port: port, Path: path}, nil
}

func invalidURL(raw, reason string) *Error {
	return &Error{Code: CodeInvalidURL, Message: reason + ": " + strconv.Quote(raw)}
}
