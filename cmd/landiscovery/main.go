package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	dnssdlog "github.com/brutella/dnssd/log"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/fang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rescp17/lanDiscovery/pkg/discovery"
)

// options holds the global flags.
type options struct {
	configPath  string
	backend     string
	domain      string
	iface       int
	protocol    discovery.Protocol
	debug       bool
	metricsAddr string

	// set by browse --no-auto-resolve
	noAutoResolve bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd(&options{})); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "landiscovery",
		Short: "Browse and resolve mDNS/DNS-SD services on the local network",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(os.Stderr, opts.debug)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.backend, "backend", discovery.BackendAuto, "discovery backend: auto, avahi, dnssd or fake")
	flags.StringVar(&opts.domain, "domain", "", "domain to browse (default: the daemon's, normally local)")
	flags.IntVar(&opts.iface, "interface", discovery.InterfaceAny, "interface index, -1 for all")
	flags.Var(&opts.protocol, "protocol", "IP family to browse on: any, ipv4 or ipv6")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")

	cmd.AddCommand(newBrowseCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))
	cmd.AddCommand(newHostnameCmd(opts))
	return cmd
}

// setupLogging routes slog through a charm logger on w.
func setupLogging(w io.Writer, debug bool) {
	level := charmlog.InfoLevel
	if debug {
		level = charmlog.DebugLevel
	}
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	slog.SetDefault(slog.New(handler))

	if !debug {
		dnssdlog.Info.SetOutput(io.Discard)
		dnssdlog.Debug.SetOutput(io.Discard)
	}
}

// loadConfig reads --config, then applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *options) (*discovery.Config, error) {
	cfg := discovery.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = discovery.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if flags.Changed("domain") {
		cfg.Domain = opts.domain
	}
	if flags.Changed("interface") {
		cfg.Interface = opts.iface
	}
	if flags.Changed("protocol") {
		cfg.Protocol = opts.protocol
	}
	if opts.noAutoResolve {
		cfg.AutoResolve = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// startMetrics serves /metrics on addr until the returned stop
// function is called. An empty addr disables metrics.
func startMetrics(addr string) (*discovery.Metrics, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}

	registry := prometheus.NewRegistry()
	metrics, err := discovery.NewMetrics(registry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", addr)

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Failed to stop metrics server", "error", err)
		}
	}
	return metrics, stop, nil
}

// openManager builds the configured backend. The returned cleanup closes
// the manager and the metrics server.
func openManager(cmd *cobra.Command, opts *options) (*discovery.Manager, *discovery.Config, func(), error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, nil, err
	}

	metrics, stopMetrics, err := startMetrics(opts.metricsAddr)
	if err != nil {
		return nil, nil, nil, err
	}

	m, err := discovery.NewManager(cfg, metrics)
	if err != nil {
		stopMetrics()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := m.Close(); err != nil {
			slog.Warn("Failed to close discovery", "error", err)
		}
		stopMetrics()
	}
	return m, cfg, cleanup, nil
}
