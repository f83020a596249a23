// mongomgrd -- connection-manager daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mguindin/mongomgr/internal/config"
	"github.com/mguindin/mongomgr/internal/connmgr"
	mongomgrmetrics "github.com/mguindin/mongomgr/internal/metrics"
	"github.com/mguindin/mongomgr/internal/transport"
	appversion "github.com/mguindin/mongomgr/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// errUnknownDeploymentType is returned when a config.SeedConfig's
// deployment_type was not caught by config.Validate (should be unreachable).
var errUnknownDeploymentType = errors.New("unknown deployment_type")

// errUnknownReadPreference is returned when a config.SeedConfig's
// read_preference was not caught by config.Validate (should be unreachable).
var errUnknownReadPreference = errors.New("unknown read_preference")

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger := newLogger(cfg.Log)
	logger.Info("mongomgrd starting",
		slog.String("version", appversion.Version),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("seeds", len(cfg.Seeds)),
	)

	reg := prometheus.NewRegistry()
	collector := mongomgrmetrics.NewCollector(reg)

	mgr := connmgr.NewManager(transport.New(),
		connmgr.WithSink(connmgr.NewSlogSink(logger)),
		connmgr.WithMetrics(collector),
	)
	mgr.SetIntervals(cfg.Pool.PingInterval, cfg.Pool.IsMasterInterval)
	defer mgr.Deinit()

	if err := runServers(cfg, mgr, reg, logger); err != nil {
		logger.Error("mongomgrd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("mongomgrd stopped")
	return 0
}

// runServers runs the metrics HTTP server and the periodic seed-refresh
// loop under an errgroup with a signal-aware context for graceful shutdown.
func runServers(cfg *config.Config, mgr *connmgr.Manager, reg *prometheus.Registry, logger *slog.Logger) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	seeds, err := configSeedsToConnmgr(cfg.Seeds, cfg.Pool.SelectionWindow)
	if err != nil {
		return fmt.Errorf("convert seed config: %w", err)
	}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	if len(seeds) > 0 {
		g.Go(func() error {
			runRefreshLoop(gCtx, mgr, seeds, cfg.Pool.PingInterval, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// namedSeedSet pairs a config.SeedConfig's name with its connmgr.SeedSet, so
// the refresh loop can log which deployment a failure belongs to.
type namedSeedSet struct {
	name string
	set  *connmgr.SeedSet
}

// runRefreshLoop calls GetReadWriteConnection for every configured
// deployment once per interval, keeping each deployment's connection pool
// warm and its metrics current. It blocks until ctx is cancelled.
func runRefreshLoop(ctx context.Context, mgr *connmgr.Manager, seeds []namedSeedSet, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshAll(ctx, mgr, seeds, logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshAll(ctx, mgr, seeds, logger)
		}
	}
}

func refreshAll(ctx context.Context, mgr *connmgr.Manager, seeds []namedSeedSet, logger *slog.Logger) {
	for _, ns := range seeds {
		conn, err := mgr.GetReadWriteConnection(ctx, ns.set, 0)
		if err != nil {
			logger.Warn("failed to refresh deployment connection",
				slog.String("deployment", ns.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Debug("refreshed deployment connection",
			slog.String("deployment", ns.name),
			slog.String("server", conn.Server().Host),
			slog.String("role", conn.Role().String()),
		)
	}
}

// gracefulShutdown shuts down the metrics server, waiting at most
// shutdownTimeout for in-flight requests to drain.
func gracefulShutdown(ctx context.Context, metricsSrv *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// listenAndServe listens on addr and serves srv until the context is
// cancelled or the server is shut down.
func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLogger creates a structured logger per cfg.
func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// configSeedsToConnmgr converts every config.SeedConfig into a named
// connmgr.SeedSet, resolving host:port strings and the deployment_type/
// read_preference enums validated by config.Validate. window is applied as
// every seed's ReadPreference.Window (spec.md §3 "default 15").
func configSeedsToConnmgr(seeds []config.SeedConfig, window time.Duration) ([]namedSeedSet, error) {
	out := make([]namedSeedSet, 0, len(seeds))
	for _, sc := range seeds {
		deployment, err := parseDeploymentType(sc.DeploymentType)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", sc.Name, err)
		}

		mode, err := parseReadPreference(sc.ReadPreference)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", sc.Name, err)
		}

		servers := make([]connmgr.ServerDef, 0, len(sc.Hosts))
		for _, hp := range sc.Hosts {
			server, err := parseHostPort(hp)
			if err != nil {
				return nil, fmt.Errorf("seed %q: %w", sc.Name, err)
			}
			server.AuthDB = sc.AuthDB
			server.Username = sc.Username
			server.Password = sc.Password
			servers = append(servers, server)
		}

		out = append(out, namedSeedSet{
			name: sc.Name,
			set: &connmgr.SeedSet{
				Servers:         servers,
				DeploymentType:  deployment,
				ReadPreference:  connmgr.ReadPreference{Mode: mode, Window: window},
				ExpectedReplSet: sc.ReplicaSetName,
			},
		})
	}
	return out, nil
}

func parseDeploymentType(s string) (connmgr.DeploymentType, error) {
	switch s {
	case "standalone":
		return connmgr.Standalone, nil
	case "replica_set":
		return connmgr.ReplicaSet, nil
	case "multi_router":
		return connmgr.MultiRouter, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errUnknownDeploymentType)
	}
}

func parseReadPreference(s string) (connmgr.Mode, error) {
	switch s {
	case "", "primary":
		return connmgr.Primary, nil
	case "primary_preferred":
		return connmgr.PrimaryPreferred, nil
	case "secondary":
		return connmgr.Secondary, nil
	case "secondary_preferred":
		return connmgr.SecondaryPreferred, nil
	case "nearest":
		return connmgr.Nearest, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errUnknownReadPreference)
	}
}

func parseHostPort(hostport string) (connmgr.ServerDef, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return connmgr.ServerDef{}, fmt.Errorf("parse host:port %q: %w", hostport, err)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return connmgr.ServerDef{}, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return connmgr.ServerDef{Host: host, Port: port}, nil
}
