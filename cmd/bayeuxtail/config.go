package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/dkmadigan/gobayeux"
)

const logLevelEnv = "GOBAYEUX_LOG_LEVEL"

type config struct {
	URL             string
	Channels        []gobayeux.Channel
	LogLevel        string
	LogFormat       string
	Token           string
	TokenHostSuffix string
	Replay          bool
	ReplayAll       bool
	MaxRetries      int
	DispatchTimeout time.Duration
	ShutdownTimeout time.Duration
	MetricsAddr     string
}

func defaultConfig() config {
	return config{
		LogLevel:        "info",
		LogFormat:       "text",
		DispatchTimeout: 10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

type fileConfig struct {
	URL             string   `toml:"url"`
	Channels        []string `toml:"channels"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
	Token           string   `toml:"token"`
	TokenHostSuffix string   `toml:"token_host_suffix"`
	Replay          bool     `toml:"replay"`
	ReplayAll       bool     `toml:"replay_all"`
	MaxRetries      int      `toml:"max_retries"`
	DispatchTimeout string   `toml:"dispatch_timeout"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	MetricsAddr     string   `toml:"metrics_addr"`
}

func loadFileConfig(path string, cfg *config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load bayeuxtail config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load bayeuxtail config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("channels") {
		cfg.Channels = normalizeChannels(raw.Channels)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("token") {
		cfg.Token = raw.Token
	}
	if meta.IsDefined("token_host_suffix") {
		cfg.TokenHostSuffix = strings.TrimSpace(raw.TokenHostSuffix)
	}
	if meta.IsDefined("replay") {
		cfg.Replay = raw.Replay
	}
	if meta.IsDefined("replay_all") {
		cfg.ReplayAll = raw.ReplayAll
	}
	if meta.IsDefined("max_retries") {
		cfg.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("dispatch_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DispatchTimeout))
		if err != nil {
			return fmt.Errorf("parse dispatch_timeout: %w", err)
		}
		cfg.DispatchTimeout = d
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return nil
}

// parseConfig layers defaults, the config file, the environment and flags,
// in that order. Positional arguments replace the configured channels.
func parseConfig(args []string, getenv func(string) string) (config, error) {
	cfg := defaultConfig()

	var path string
	var flagValues config
	flags := pflag.NewFlagSet("bayeuxtail", pflag.ContinueOnError)
	flags.StringVarP(&path, "config", "c", "", "path to a TOML config file")
	flags.StringVar(&flagValues.URL, "url", "", "the Bayeux endpoint, for example https://example.com/cometd")
	flags.StringVar(&flagValues.LogLevel, "log-level", cfg.LogLevel, "the level to log at")
	flags.StringVar(&flagValues.LogFormat, "log-format", cfg.LogFormat, "text, json or zerolog")
	flags.StringVar(&flagValues.Token, "token", "", "bearer token sent with every request")
	flags.StringVar(&flagValues.TokenHostSuffix, "token-host-suffix", "", "only send the token to hosts ending in this")
	flags.BoolVar(&flagValues.Replay, "replay", false, "enable the replay extension")
	flags.BoolVar(&flagValues.ReplayAll, "replay-all", false, "with --replay, ask for every retained event on first subscribe")
	flags.IntVar(&flagValues.MaxRetries, "max-retries", 0, "give up after this many consecutive failures (0 retries forever)")
	flags.DurationVar(&flagValues.DispatchTimeout, "dispatch-timeout", cfg.DispatchTimeout, "bound on printing a single message")
	flags.DurationVar(&flagValues.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "bound on a clean disconnect")
	flags.StringVar(&flagValues.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	if err := flags.Parse(args); err != nil {
		return config{}, err
	}

	if path != "" {
		if err := loadFileConfig(path, &cfg); err != nil {
			return config{}, err
		}
	}
	if level := strings.TrimSpace(getenv(logLevelEnv)); level != "" {
		cfg.LogLevel = level
	}

	if flags.Changed("url") {
		cfg.URL = flagValues.URL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagValues.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagValues.LogFormat
	}
	if flags.Changed("token") {
		cfg.Token = flagValues.Token
	}
	if flags.Changed("token-host-suffix") {
		cfg.TokenHostSuffix = flagValues.TokenHostSuffix
	}
	if flags.Changed("replay") {
		cfg.Replay = flagValues.Replay
	}
	if flags.Changed("replay-all") {
		cfg.ReplayAll = flagValues.ReplayAll
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = flagValues.MaxRetries
	}
	if flags.Changed("dispatch-timeout") {
		cfg.DispatchTimeout = flagValues.DispatchTimeout
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = flagValues.ShutdownTimeout
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = flagValues.MetricsAddr
	}
	if rest := flags.Args(); len(rest) > 0 {
		cfg.Channels = normalizeChannels(rest)
	}

	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	if cfg.URL == "" {
		return errors.New("no url configured")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if len(cfg.Channels) == 0 {
		return errors.New("no channels to subscribe to")
	}
	for _, ch := range cfg.Channels {
		if !ch.IsValid() {
			return fmt.Errorf("invalid channel %q", ch)
		}
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "text", "json", "zerolog":
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", cfg.MaxRetries)
	}
	return nil
}

func normalizeChannels(in []string) []gobayeux.Channel {
	out := make([]gobayeux.Channel, 0, len(in))
	for _, ch := range in {
		v := strings.TrimSpace(ch)
		if v == "" {
			continue
		}
		out = append(out, gobayeux.Channel(v))
	}
	return out
}
