// Package main implements ticketd, an in-memory ticket store served over
// HTTP and, optionally, a raw CBOR socket protocol.
//
// The daemon is responsible for:
//   - Holding every ticket in a single in-memory store
//   - Serving the JSON HTTP API
//   - Serving the CBOR socket protocol on zero or more TCP/Unix listeners
//   - Publishing ticket lifecycle events to Redis when configured
//   - Shutting down gracefully on SIGINT/SIGTERM
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                ticketd                   │
//	├─────────────────────────────────────────┤
//	│  Transports:                            │
//	│    HTTP          - JSON API             │
//	│    sockserv      - CBOR over sockets    │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    dispatch      - validation, codes    │
//	│    storage       - two-tier locked store│
//	│    events        - Redis stream (opt.)  │
//	└─────────────────────────────────────────┘
//
// Configuration (see internal/config for the file format):
//   - --config: YAML configuration file
//   - --http-addr / TICKETD_HTTP_ADDR: HTTP listen address (default ":3000")
//   - --socket / TICKETD_SOCKET_ADDRS: socket listeners, repeatable
//   - --log-level / TICKETD_LOG_LEVEL: debug, info, warn, error
//   - --log-format / TICKETD_LOG_FORMAT: json or text
//   - TICKETD_REDIS_URL, TICKETD_REDIS_STREAM: event publication
//
// Example usage:
//
//	# Start the daemon with a TCP socket listener
//	ticketd --http-addr :3000 --socket 127.0.0.1:3001
//
//	# Create and read a ticket
//	curl -X POST localhost:3000/tickets -d '{"title":"t1","description":"d1"}'
//	curl localhost:3000/tickets/1
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/ticketd/internal/config"
	"github.com/dreamware/ticketd/internal/dispatch"
	"github.com/dreamware/ticketd/internal/events"
	"github.com/dreamware/ticketd/internal/sockserv"
	"github.com/dreamware/ticketd/internal/storage"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if err := run(os.Args[1:]); err != nil {
		logFatal("ticketd: %v", err)
	}
}

// run loads configuration, starts every transport and blocks until a
// shutdown signal arrives or a transport fails.
func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, monitor, closePublisher := newPublisher(ctx, cfg.Events, logger)
	defer closePublisher()

	d := dispatch.New(storage.NewStore(), publisher, logger)

	listeners, err := openListeners(cfg.SocketAddrs)
	if err != nil {
		return err
	}

	return serve(ctx, cfg, d, monitor, listeners, logger)
}

// loadConfig parses command-line flags on top of the file and environment
// configuration. Flags that were not given leave the loaded value alone.
func loadConfig(args []string) (config.Config, error) {
	flags := pflag.NewFlagSet("ticketd", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	httpAddr := flags.String("http-addr", "", "HTTP listen address")
	sockets := flags.StringSlice("socket", nil, "CBOR socket listener (host:port or unix:/path), repeatable")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := flags.String("log-format", "", "log format: json or text")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr = *httpAddr
	}
	if flags.Changed("socket") {
		cfg.SocketAddrs = *sockets
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newPublisher connects to Redis when an events URL is configured. An
// unreachable Redis is logged and tolerated: events are best effort and the
// client reconnects on its own. The returned monitor is nil when events are
// disabled.
func newPublisher(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, *events.Monitor, func()) {
	if cfg.RedisURL == "" {
		return events.Nop{}, nil, func() {}
	}

	client, err := events.Dial(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, events disabled", "error", err)
		return events.Nop{}, nil, func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable yet", "error", err)
	} else {
		logger.Info("publishing ticket events", "stream", cfg.Stream)
	}

	monitor := events.NewMonitor(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, cfg.CheckInterval, logger)
	monitor.SetOnUnhealthy(func() {
		logger.Warn("ticket events are being dropped",
			"stream", cfg.Stream,
			"redis_addr", client.Options().Addr,
		)
	})

	return events.NewRedisPublisher(client, cfg.Stream), monitor, func() { client.Close() }
}

func openListeners(addrs []string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		l, err := sockserv.Listen(addr)
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// serve runs the HTTP server, the socket server and the event sink monitor
// until ctx is cancelled, then shuts them down. The first transport error
// stops everything. monitor may be nil.
func serve(ctx context.Context, cfg config.Config, d *dispatch.Dispatcher, monitor *events.Monitor, listeners []net.Listener, logger *slog.Logger) error {
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newHandler(d, monitor, logger),
		ReadHeaderTimeout: 5 * time.Second, // Prevent slowloris attacks
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		return nil
	})

	if len(listeners) > 0 {
		g.Go(func() error {
			return sockserv.NewServer(d, logger).Serve(gctx, listeners...)
		})
	}

	if monitor != nil {
		g.Go(func() error {
			monitor.Run(gctx)
			return nil
		})
	}

	err := g.Wait()
	logger.Info("ticketd stopped")
	return err
}
