// Package main provides the leaderboard command: it fetches a scoreboard URL
// with the polled client, one step per frame, the way the game does.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mpersano/kasui/internal/config"
	"github.com/mpersano/kasui/internal/fetch"
	"github.com/mpersano/kasui/internal/infra"
	"github.com/mpersano/kasui/internal/logging"
	"github.com/mpersano/kasui/internal/storage"
)

type submitFlags []string

func (s *submitFlags) String() string { return strings.Join(*s, ",") }

func (s *submitFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected name=score, got %q", v)
	}
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv(config.EnvConfigPath), "path to a TOML config file")
	var submits submitFlags
	fs.Var(&submits, "submit", "append name=score to the query string (repeatable)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: leaderboard [-config file] [-submit name=score ...] URL\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "leaderboard: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "leaderboard: %v\n", err)
		return 1
	}
	defer logger.Sync()

	target, err := withSubmissions(fs.Arg(0), submits)
	if err != nil {
		logger.Error("Invalid submission", zap.Error(err))
		return 2
	}

	client, closeStore, err := newClient(cfg, logger)
	if err != nil {
		logger.Error("Failed to set up client", zap.Error(err))
		return 1
	}
	defer closeStore()

	var res fetch.Result
	req := client.NewRequest()
	if !req.Get(target, func(r fetch.Result) { res = r }) {
		logger.Error("Invalid URL", zap.String("url", target))
		return 2
	}

	ticker := time.NewTicker(cfg.FrameInterval())
	defer ticker.Stop()
	frames := 0
	for req.Poll() {
		<-ticker.C
		frames++
	}

	if err := client.FlushCache(); err != nil {
		logger.Warn("Failed to save address cache", zap.Error(err))
	}

	logger.Info("Request finished",
		zap.Int("frames", frames),
		zap.Bool("from_cache", res.FromCache),
		zap.Stringer("server", res.ServerIP),
		zap.Any("timing", res.Timing),
	)

	if res.Err != nil {
		var fe *fetch.Error
		if errors.As(res.Err, &fe) {
			logger.Error("Request failed", zap.String("code", fe.Code), zap.Error(fe))
		} else {
			logger.Error("Request failed", zap.Error(res.Err))
		}
		return 1
	}

	fmt.Printf("%d\n", res.Status)
	os.Stdout.Write(res.Body)
	return 0
}

// newClient builds a client from cfg. When a cache path is configured the
// address cache is backed by SQLite; the returned func closes it.
func newClient(cfg *config.Config, logger *zap.Logger) (*fetch.Client, func(), error) {
	opts, err := fetch.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	cacheOpts := []infra.CacheOption{
		infra.WithTTL(cfg.CacheTTL()),
		infra.WithLogger(logger),
	}
	closeStore := func() {}
	if cfg.CachePath != "" {
		db, err := storage.New(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		cacheOpts = append(cacheOpts, infra.WithStore(db))
		closeStore = func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close address cache", zap.Error(err))
			}
		}
	}

	opts.Cache = infra.NewAddressCache(cacheOpts...)
	opts.Logger = logger
	return fetch.NewClient(opts), closeStore, nil
}

// withSubmissions appends each name=score pair to the query string of raw.
func withSubmissions(raw string, submits []string) (string, error) {
	if len(submits) == 0 {
		return raw, nil
	}

	q := url.Values{}
	for _, s := range submits {
		name, score, _ := strings.Cut(s, "=")
		if name == "" {
			return "", fmt.Errorf("empty name in %q", s)
		}
		if _, err := strconv.Atoi(score); err != nil {
			return "", fmt.Errorf("score for %q is not a number: %q", name, score)
		}
		q.Add("name", name)
		q.Add("score", score)
	}

	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + q.Encode(), nil
}
