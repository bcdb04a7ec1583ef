package fetch

import (
	"fmt"
	"math/rand"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/mpersano/kasui/internal/config"
	"github.com/mpersano/kasui/internal/infra"
)

// NoDNSRetries disables resending the DNS query.
const NoDNSRetries = -1

// Options configures a Client. Zero values fall back to the defaults.
type Options struct {
	Resolver   netip.AddrPort
	DNSTimeout time.Duration
	// DNSRetries is the number of resends after the first query. Zero uses
	// the default; set NoDNSRetries to send the query once.
	DNSRetries     int
	ConnectTimeout time.Duration
	UserAgent      string
	// DecodeBody advertises Accept-Encoding and decodes compressed bodies.
	DecodeBody bool

	Cache   *infra.AddressCache
	Dialer  infra.Dialer
	Logger  *zap.Logger
	Now     func() time.Time
	QueryID func() uint16
}

// DefaultOptions returns the options of an unconfigured client.
func DefaultOptions() Options {
	return Options{
		Resolver:       netip.MustParseAddrPort(config.DefaultResolver),
		DNSTimeout:     config.DefaultDNSTimeoutMS * time.Millisecond,
		DNSRetries:     config.DefaultDNSRetries,
		ConnectTimeout: config.DefaultConnectTimeoutMS * time.Millisecond,
		UserAgent:      config.DefaultUserAgent,
	}
}

// OptionsFromConfig maps a loaded configuration onto client options. The
// cache, dialer and logger are left for the caller to supply.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	resolver, err := cfg.ResolverAddr()
	if err != nil {
		return Options{}, fmt.Errorf("invalid config: %w", err)
	}
	retries := cfg.DNSRetries
	if retries == 0 {
		retries = NoDNSRetries
	}
	return Options{
		Resolver:       resolver,
		DNSTimeout:     cfg.DNSTimeout(),
		DNSRetries:     retries,
		ConnectTimeout: cfg.ConnectTimeout(),
		UserAgent:      cfg.UserAgent,
		DecodeBody:     cfg.DecodeBody,
	}, nil
}

// Client holds what requests share: the address cache, the socket dialer,
// timeouts and the logger.
type Client struct {
	opts    Options
	cache   *infra.AddressCache
	dialer  infra.Dialer
	logger  *zap.Logger
	now     func() time.Time
	queryID func() uint16
}

// NewClient creates a client.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if !opts.Resolver.IsValid() {
		opts.Resolver = def.Resolver
	}
	if opts.DNSTimeout <= 0 {
		opts.DNSTimeout = def.DNSTimeout
	}
	switch {
	case opts.DNSRetries == 0:
		opts.DNSRetries = def.DNSRetries
	case opts.DNSRetries < 0:
		opts.DNSRetries = 0
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	c := &Client{
		opts:    opts,
		cache:   opts.Cache,
		dialer:  opts.Dialer,
		logger:  opts.Logger,
		now:     opts.Now,
		queryID: opts.QueryID,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.cache == nil {
		c.cache = infra.NewAddressCache(infra.WithClock(c.now), infra.WithLogger(c.logger))
	}
	if c.dialer == nil {
		c.dialer = infra.NewSystemDialer()
	}
	if c.queryID == nil {
		c.queryID = func() uint16 { return uint16(rand.Uint32()) }
	}
	return c
}

// Cache returns the address cache shared by the client's requests.
func (c *Client) Cache() *infra.AddressCache {
	return c.cache
}

// FlushCache persists address cache changes to its store. It may block on
// disk, so call it between requests or on shutdown, never from a frame loop.
func (c *Client) FlushCache() error {
	return c.cache.Flush()
}

// NewRequest returns an idle request. Start it with Get.
func (c *Client) NewRequest() *Request {
	return &Request{client: c, logger: c.logger}
}
