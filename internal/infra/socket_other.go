//go:build !linux && !darwin

package infra

import "errors"

var errUnsupported = errors.New("non-blocking sockets are not supported on this platform")

// SystemDialer reports an error for every socket on unsupported platforms.
type SystemDialer struct{}

// NewSystemDialer returns a Dialer that always fails.
func NewSystemDialer() *SystemDialer {
	return &SystemDialer{}
}

func (d *SystemDialer) UDP() (Socket, error) { return nil, errUnsupported }

func (d *SystemDialer) TCP() (Socket, error) { return nil, errUnsupported }
