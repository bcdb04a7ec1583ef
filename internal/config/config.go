// Package config provides configuration loading from a TOML file and environment variables.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultResolver is the recursive resolver queried for address records.
	DefaultResolver = "8.8.8.8:53"
	// DefaultDNSTimeoutMS is how long a DNS query waits for a reply before resending.
	DefaultDNSTimeoutMS = 3000
	// DefaultDNSRetries is the number of resends after the first query.
	DefaultDNSRetries = 3
	// DefaultConnectTimeoutMS bounds TCP connection establishment.
	DefaultConnectTimeoutMS = 5000
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "kasui/1.0"
	// DefaultFrameRate is the number of polls per second the CLI performs.
	DefaultFrameRate = 60
	// DefaultLogLevel is the zap level used when none is configured.
	DefaultLogLevel = "info"

	// EnvConfigPath names the variable holding an optional TOML config file.
	EnvConfigPath = "KASUI_CONFIG"
)

// Config holds the application configuration.
type Config struct {
	Resolver         string `toml:"resolver"`
	DNSTimeoutMS     int    `toml:"dns_timeout_ms"`
	DNSRetries       int    `toml:"dns_retries"`
	ConnectTimeoutMS int    `toml:"connect_timeout_ms"`
	UserAgent        string `toml:"user_agent"`
	CacheTTLSeconds  int    `toml:"cache_ttl_seconds"` // 0 keeps entries for the process lifetime
	CachePath        string `toml:"cache_path"`        // empty keeps the cache in memory only
	DecodeBody       bool   `toml:"decode_body"`
	LogLevel         string `toml:"log_level"`
	LogDevelopment   bool   `toml:"log_development"`
	FrameRate        int    `toml:"frame_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Resolver:         DefaultResolver,
		DNSTimeoutMS:     DefaultDNSTimeoutMS,
		DNSRetries:       DefaultDNSRetries,
		ConnectTimeoutMS: DefaultConnectTimeoutMS,
		UserAgent:        DefaultUserAgent,
		LogLevel:         DefaultLogLevel,
		FrameRate:        DefaultFrameRate,
	}
}

// Load builds the configuration from defaults, the file named by KASUI_CONFIG
// (if set) and environment overrides, in that order.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvConfigPath))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.Resolver = getEnvString("KASUI_RESOLVER", cfg.Resolver)
	cfg.DNSTimeoutMS = getEnvInt("KASUI_DNS_TIMEOUT_MS", cfg.DNSTimeoutMS)
	cfg.DNSRetries = getEnvInt("KASUI_DNS_RETRIES", cfg.DNSRetries)
	cfg.ConnectTimeoutMS = getEnvInt("KASUI_CONNECT_TIMEOUT_MS", cfg.ConnectTimeoutMS)
	cfg.UserAgent = getEnvString("KASUI_USER_AGENT", cfg.UserAgent)
	cfg.CacheTTLSeconds = getEnvInt("KASUI_CACHE_TTL_SECONDS", cfg.CacheTTLSeconds)
	cfg.CachePath = getEnvString("KASUI_CACHE_PATH", cfg.CachePath)
	cfg.DecodeBody = getEnvBool("KASUI_DECODE_BODY", cfg.DecodeBody)
	cfg.LogLevel = getEnvString("KASUI_LOG_LEVEL", cfg.LogLevel)
	cfg.FrameRate = getEnvInt("KASUI_FRAME_RATE", cfg.FrameRate)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.ResolverAddr(); err != nil {
		return err
	}
	if c.DNSTimeoutMS <= 0 {
		return fmt.Errorf("dns_timeout_ms must be positive, got %d", c.DNSTimeoutMS)
	}
	if c.DNSRetries < 0 {
		return fmt.Errorf("dns_retries must not be negative, got %d", c.DNSRetries)
	}
	if c.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("connect_timeout_ms must be positive, got %d", c.ConnectTimeoutMS)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache_ttl_seconds must not be negative, got %d", c.CacheTTLSeconds)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %d", c.FrameRate)
	}
	return nil
}

// ResolverAddr parses the resolver as an IPv4 address and port.
func (c *Config) ResolverAddr() (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(c.Resolver)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid resolver %q: %w", c.Resolver, err)
	}
	if !ap.Addr().Is4() {
		return netip.AddrPort{}, fmt.Errorf("resolver %q is not an IPv4 address", c.Resolver)
	}
	return ap, nil
}

// DNSTimeout returns the per-query DNS timeout.
func (c *Config) DNSTimeout() time.Duration {
	return time.Duration(c.DNSTimeoutMS) * time.Millisecond
}

// ConnectTimeout returns the TCP connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// CacheTTL returns the address cache time-to-live; zero means no expiry.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FrameInterval returns the delay between two polls.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}
