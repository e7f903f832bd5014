package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecstasoy/handshake/pkg/client"
	"github.com/ecstasoy/handshake/pkg/config"
	"github.com/ecstasoy/handshake/pkg/interceptor"
	"github.com/ecstasoy/handshake/pkg/logger"
	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/ratelimiter"
	"github.com/ecstasoy/handshake/pkg/server"
	_ "github.com/ecstasoy/handshake/pkg/transport/tcp"
	_ "github.com/ecstasoy/handshake/pkg/transport/ws"
)

const usage = "run with 'server'/'client'/'send'/'exit' subcommand"

var (
	configPath string
	address    string
	debug      bool
	once       bool
	metrics    string
	rate       float64
	empty      bool
	timeout    time.Duration
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&configPath, "c", "", "yaml config file")
	fs.StringVar(&address, "a", "", "endpoint address, e.g. tcp://localhost:5555 or ws://localhost:5555/handshake")
	fs.BoolVar(&debug, "d", false, "print debug log")

	switch cmd {
	case "server":
		fs.BoolVar(&once, "once", false, "stop after the first exchange")
		fs.StringVar(&metrics, "metrics", "", "address to expose prometheus metrics on")
		fs.Float64Var(&rate, "rate", 0, "max handshakes answered per second (0 for no limit)")
	case "client", "send", "exit":
		fs.BoolVar(&empty, "empty", false, "send a zero-length handshake")
		fs.DurationVar(&timeout, "t", 0, "exchange timeout (0 waits forever)")
	default:
		fmt.Fprintln(os.Stderr, "only 'server'/'client'/'send'/'exit' subcommands are allowed")
		os.Exit(2)
	}

	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(cmd, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(log)

	switch cmd {
	case "server":
		err = runServer(ctx, cfg, log)
	case "client":
		err = runClient(ctx, cfg, log, client.ModeRequestReply, false)
	case "send":
		err = runClient(ctx, cfg, log, client.ModeFireAndForget, false)
	case "exit":
		err = runClient(ctx, cfg, log, client.ModeRequestReply, true)
	}

	if err != nil {
		fatal(log, err)
	}
}

func loadConfig(cmd string, fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.ApplyEnv()

	// explicit flags win over file and environment
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			if cmd == "server" {
				cfg.Server.Address = address
			} else {
				cfg.Client.Address = address
			}
		case "d":
			if debug {
				cfg.Log.Level = "debug"
			}
		case "once":
			cfg.Server.Once = once
		case "metrics":
			cfg.Server.MetricsAddress = metrics
		case "rate":
			cfg.Server.RateLimit = rate
		case "empty":
			cfg.Client.EmptyPayload = empty
		case "t":
			cfg.Client.Timeout = config.Duration{Duration: timeout}
		}
	})

	return cfg, cfg.Validate()
}

func runServer(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	opts := []server.Option{
		server.WithAddress(cfg.Server.Address),
		server.WithTimeout(cfg.Server.ReadTimeout.Duration, cfg.Server.WriteTimeout.Duration),
		server.WithMaxMessageSize(cfg.Server.MaxMessageSize),
		server.WithLogger(log),
	}
	if cfg.Server.Once {
		opts = append(opts, server.WithOnce())
	}

	srv, err := server.NewServer(opts...)
	if err != nil {
		return err
	}

	srv.Use(
		interceptor.Recovery(),
		interceptor.Logging(log),
	)

	if cfg.Server.RateLimit > 0 {
		srv.Use(interceptor.RateLimit(ratelimiter.NewTokenBucket(cfg.Server.RateLimit, cfg.Server.Burst)))
	}

	if cfg.Server.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv.Use(interceptor.Metrics(interceptor.NewCollectors(reg)))

		shutdown := serveMetrics(cfg.Server.MetricsAddress, reg, log)
		defer shutdown()
	}

	err = srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("interrupted, endpoint released")
		return nil
	}
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics listening", slog.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", slog.String("err", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}
}

func runClient(ctx context.Context, cfg *config.Config, log *slog.Logger, mode client.Mode, exit bool) error {
	if cfg.Client.Mode != "" && mode == client.ModeRequestReply && !exit {
		parsed, err := client.ParseMode(cfg.Client.Mode)
		if err != nil {
			return err
		}
		mode = parsed
	}

	opts := []client.Option{
		client.WithAddress(cfg.Client.Address),
		client.WithMode(mode),
		client.WithDialTimeout(cfg.Client.DialTimeout.Duration),
		client.WithTimeout(cfg.Client.Timeout.Duration),
		client.WithMaxMessageSize(cfg.Client.MaxMessageSize),
		client.WithLogger(log),
	}
	if cfg.Client.EmptyPayload {
		opts = append(opts, client.WithEmptyPayload())
	}

	c, err := client.NewClient(opts...)
	if err != nil {
		return err
	}

	if exit {
		_, err = c.Exit(ctx)
	} else {
		_, err = c.Handshake(ctx)
	}
	return err
}

func fatal(log *slog.Logger, err error) {
	if op, ok := protocol.OpOf(err); ok {
		log.Debug("operation failed", slog.String("op", string(op)))
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
