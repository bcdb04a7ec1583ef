package fetch

import (
	"net/netip"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpersano/kasui/internal/infra"
)

// state is one phase of a request: *resolving, *connecting, *writing or
// *reading. Each variant owns the socket it holds until it either closes it
// or hands it to the next variant.
type state interface {
	name() string
	close() error
}

// Request is a single HTTP GET. It is not safe for concurrent use; the
// owner calls Poll until it returns false.
type Request struct {
	client *Client
	logger *zap.Logger

	target    Target
	state     state
	cb        Callback
	done      chan Result
	timing    *DetailedTiming
	fromCache bool
	serverIP  netip.Addr
}

// Get parses rawURL and starts the request. It returns false, without
// opening any socket or invoking cb, when the URL is not a valid http URL or
// the request is already in flight. Failures after that point, including
// socket creation, are reported through cb and Done.
func (r *Request) Get(rawURL string, cb Callback) bool {
	if r.state != nil {
		return false
	}

	target, err := ParseURL(rawURL)
	if err != nil {
		r.client.logger.Debug("Rejected URL", zap.Error(err))
		return false
	}

	r.target = target
	r.cb = cb
	r.done = make(chan Result, 1)
	r.timing = NewDetailedTiming(r.client.now)
	r.fromCache = false
	r.serverIP = netip.Addr{}
	r.logger = r.client.logger.With(
		zap.String("request", uuid.NewString()),
		zap.String("host", target.Host),
	)

	if addr, err := netip.ParseAddr(target.Host); err == nil && addr.Is4() {
		r.startConnecting([]netip.Addr{addr})
		return true
	}

	if addrs, ok := r.client.cache.Lookup(target.Host); ok {
		r.fromCache = true
		r.startConnecting(addrs)
		return true
	}

	r.startResolving()
	return true
}

// Poll advances the request by at most one step of its current state and
// reports whether it is still in progress. Once finished, Poll keeps
// returning false.
func (r *Request) Poll() bool {
	if r.state == nil {
		return false
	}
	r.advance()
	return r.state != nil
}

// Done returns a channel that receives the Result once the request finishes.
// It is nil before Get succeeds.
func (r *Request) Done() <-chan Result {
	return r.done
}

// Target returns the parsed URL of the current or last request.
func (r *Request) Target() Target {
	return r.target
}

// Close abandons the request, releasing its socket. The callback is not
// invoked and Done never receives a Result.
func (r *Request) Close() error {
	if r.state == nil {
		return nil
	}
	r.logger.Debug("Request abandoned", zap.String("state", r.state.name()))
	err := r.state.close()
	r.state = nil
	r.cb = nil
	return err
}

func (r *Request) advance() {
	switch s := r.state.(type) {
	case *resolving:
		r.pollResolving(s)
	case *connecting:
		r.pollConnecting(s)
	case *writing:
		r.pollWriting(s)
	case *reading:
		r.pollReading(s)
	}
}

// enter installs next, releasing whatever the previous state still owns.
func (r *Request) enter(next state) {
	from := "idle"
	if r.state != nil {
		from = r.state.name()
		r.closeState()
	}
	r.logger.Debug("State transition", zap.String("from", from), zap.String("to", next.name()))
	r.state = next
}

func (r *Request) closeState() {
	if err := r.state.close(); err != nil {
		r.logger.Debug("Failed to close socket", zap.String("state", r.state.name()), zap.Error(err))
	}
}

func (r *Request) fail(code, message string, err error) {
	e := &Error{Code: code, Message: message, Err: err}
	stateName := "idle"
	if r.state != nil {
		stateName = r.state.name()
	}
	r.logger.Warn("Request failed", zap.String("state", stateName), zap.Error(e))
	r.finish(Result{Err: e})
}

func (r *Request) complete(status int, header map[string]string, body []byte) {
	r.logger.Debug("Request completed", zap.Int("status", status), zap.Int("bodySize", len(body)))
	r.finish(Result{
		OK:     true,
		Status: status,
		Header: header,
		Body:   body,
	})
}

// finish tears the state down, then delivers res. The callback is cleared
// before it runs so it cannot fire twice.
func (r *Request) finish(res Result) {
	if r.state != nil {
		r.closeState()
		r.state = nil
	}

	res.ServerIP = r.serverIP
	res.FromCache = r.fromCache
	res.Timing = r.timing.ToTimingInfo()

	cb := r.cb
	r.cb = nil
	r.done <- res
	if cb != nil {
		cb(res)
	}
}

func closeSocket(sock *infra.Socket) error {
	if *sock == nil {
		return nil
	}
	err := (*sock).Close()
	*sock = nil
	return err
}
