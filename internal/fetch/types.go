// Package fetch implements a polled, non-blocking HTTP/1.0 GET client with its
// own DNS resolution. A Request advances only inside Poll, which never blocks,
// so it can be driven from a render loop once per frame.
package fetch

import (
	"fmt"
	"net/netip"
)

// Error codes carried by Error.
const (
	CodeInvalidURL      = "INVALID_URL"
	CodeSocket          = "SOCKET_ERROR"
	CodeDNS             = "DNS_ERROR"
	CodeDNSTimeout      = "DNS_TIMEOUT"
	CodeConnect         = "CONNECT_ERROR"
	CodeConnectTimeout  = "CONNECT_TIMEOUT"
	CodeWrite           = "WRITE_ERROR"
	CodeRead            = "READ_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeDecompression   = "DECOMPRESSION_ERROR"
)

// Error describes why a request failed.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Result is the outcome of a request. A non-2xx status is still OK; only
// transport and protocol failures set Err.
type Result struct {
	OK        bool
	Status    int
	Header    map[string]string // lower-cased names, first value wins
	Body      []byte
	ServerIP  netip.Addr
	FromCache bool
	Timing    TimingInfo
	Err       error
}

// Callback receives the Result of a request exactly once.
type Callback func(Result)

// TimingInfo contains per-phase durations in milliseconds. Phases a request
// never reached are nil.
type TimingInfo struct {
	Total    uint64  `json:"total"`
	DNS      *uint64 `json:"dns,omitempty"`
	Connect  *uint64 `json:"connect,omitempty"`
	Write    *uint64 `json:"write,omitempty"`
	TTFB     *uint64 `json:"ttfb,omitempty"`
	Download *uint64 `json:"download,omitempty"`
}
