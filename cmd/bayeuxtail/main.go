// bayeuxtail subscribes to Bayeux channels and logs every message it
// receives until it is interrupted.
//
//	bayeuxtail --url https://example.com/cometd /foo/bar '/baz/**'
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/dkmadigan/gobayeux"
	"github.com/dkmadigan/gobayeux/extensions/auth"
	"github.com/dkmadigan/gobayeux/extensions/replay"
	"github.com/dkmadigan/gobayeux/prommetrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	cfg, err := parseConfig(args, getenv)
	if err != nil {
		return err
	}

	logger, clientLogger := newLoggers(cfg, out)

	opts := []gobayeux.Option{
		clientLogger,
		gobayeux.WithMaxRetries(cfg.MaxRetries),
		gobayeux.WithDispatchTimeout(cfg.DispatchTimeout),
		gobayeux.WithShutdownTimeout(cfg.ShutdownTimeout),
	}
	if cfg.Token != "" {
		opts = append(opts, gobayeux.WithHTTPTransport(&auth.BearerTokenAuthenticator{
			Source:     auth.StaticToken(cfg.Token),
			HostSuffix: cfg.TokenHostSuffix,
		}))
	}
	if cfg.Replay {
		fallback := replay.ReplayNewEvents
		if cfg.ReplayAll {
			fallback = replay.ReplayAllEvents
		}
		opts = append(opts, gobayeux.WithExtension(replay.New(replay.WithFallback(fallback))))
	}
	if cfg.MetricsAddr != "" {
		collector := prommetrics.New("bayeuxtail")
		registry := prometheus.NewRegistry()
		registry.MustRegister(collector)
		opts = append(opts, gobayeux.WithMetrics(collector))

		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	client, err := gobayeux.NewClient(cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("initializing client: %w", err)
	}

	for _, ch := range cfg.Channels {
		if _, err := client.Register(ch, printer(logger)); err != nil {
			return fmt.Errorf("registering %s: %w", ch, err)
		}
	}

	errs := client.Start(ctx)
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			var callbackErr gobayeux.CallbackError
			if errors.As(err, &callbackErr) {
				logger.WithError(err).Warn("callback failed", "channel", callbackErr.Channel)
				continue
			}
			// Anything else ends the session.
			stopErr := client.Stop(context.Background())
			return errors.Join(err, stopErr)
		case <-ctx.Done():
			logger.Info("shutting down")
			return client.Stop(context.Background())
		}
	}
}

func printer(logger gobayeux.Logger) gobayeux.Callback {
	return func(m gobayeux.Message) error {
		logger.Info("message",
			"channel", m.Channel,
			"id", m.ID,
			"data", string(m.Data),
		)
		return nil
	}
}

// newLoggers builds the logger bayeuxtail prints with and the matching
// client option
func newLoggers(cfg config, out io.Writer) (gobayeux.Logger, gobayeux.Option) {
	level, _ := logrus.ParseLevel(cfg.LogLevel)

	var opt gobayeux.Option
	switch cfg.LogFormat {
	case "zerolog":
		opt = gobayeux.WithZerologLogger(zerolog.New(out).Level(zerologLevel(level)).With().Timestamp().Logger())
	default:
		logger := logrus.New()
		logger.SetOutput(out)
		logger.SetLevel(level)
		if cfg.LogFormat == "json" {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
		opt = gobayeux.WithLogger(logger)
	}

	var options gobayeux.Options
	opt(&options)
	return options.Logger, opt
}

func zerologLevel(level logrus.Level) zerolog.Level {
	switch level {
	case logrus.TraceLevel:
		return zerolog.TraceLevel
	case logrus.DebugLevel:
		return zerolog.DebugLevel
	case logrus.InfoLevel:
		return zerolog.InfoLevel
	case logrus.WarnLevel:
		return zerolog.WarnLevel
	case logrus.ErrorLevel:
		return zerolog.ErrorLevel
	case logrus.FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.PanicLevel
	}
}
