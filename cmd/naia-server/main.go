// naia-server is the reference daemon hosting a naia.Server: it accepts
// connections, replicates the registered manifest's types, and exposes
// the ConnectRPC introspection API, a gRPC health endpoint, and
// Prometheus metrics alongside it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/cBournhonesque/naia-go/internal/config"
	"github.com/cBournhonesque/naia-go/internal/demo"
	"github.com/cBournhonesque/naia-go/internal/metrics"
	"github.com/cBournhonesque/naia-go/internal/server"
	appversion "github.com/cBournhonesque/naia-go/internal/version"
	"github.com/cBournhonesque/naia-go/naia"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// pumpInterval is how often the receive/flush loop wakes to drive the
// naia.Server regardless of socket readiness, so timer-driven sends
// (pings, handshake retries) still fire on otherwise-quiet connections.
const pumpInterval = 5 * time.Millisecond

// metricsSampleInterval is how often the pump loop polls the server's
// connection registry to refresh the replicated-object/RTT/jitter
// gauges. Per-event counters (connects, disconnects, commands) update
// immediately via recordEvent; these are cross-connection snapshots
// that are cheap to poll but pointless to recompute every pumpInterval.
const metricsSampleInterval = 1 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("naia-server starting",
		slog.String("version", appversion.Version),
		slog.String("listen_addr", cfg.Listen.Addr),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	m, err := demo.Manifest()
	if err != nil {
		logger.Error("failed to build manifest", slog.String("error", err.Error()))
		return 1
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	srv := naia.NewServer(cfg.Replication, m, []byte(cfg.Replication.HandshakeSecret), logger)
	listenAddr, err := netip.ParseAddrPort(normalizeAddr(cfg.Listen.Addr))
	if err != nil {
		logger.Error("invalid listen address", slog.String("error", err.Error()))
		return 1
	}
	if err := srv.Listen(listenAddr); err != nil {
		logger.Error("failed to bind listen socket", slog.String("error", err.Error()))
		return 1
	}
	defer func() { _ = srv.Close() }()

	if err := runServers(cfg, srv, collector, reg, logger); err != nil {
		logger.Error("naia-server exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("naia-server stopped")
	return 0
}

func runServers(
	cfg *config.Config,
	srv *naia.Server,
	collector *metrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	adminSrv := newAdminServer(cfg.Admin, srv, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(gCtx, adminSrv, cfg.Admin.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})
	g.Go(func() error {
		return runPumpLoop(gCtx, srv, collector, logger)
	})
	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runPumpLoop drives the server's receive/flush cycle. Every connection
// event it returns is folded into the metrics collector; nothing else
// consumes replication/command events here since this daemon carries no
// application-specific game logic of its own.
func runPumpLoop(ctx context.Context, srv *naia.Server, collector *metrics.Collector, logger *slog.Logger) error {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	var lastSampleAt time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, ev := range srv.Receive(now) {
				recordEvent(ev, collector, logger)
			}
			if lastSampleAt.IsZero() || now.Sub(lastSampleAt) >= metricsSampleInterval {
				sampleConnectionMetrics(srv, collector)
				lastSampleAt = now
			}
		}
	}
}

// sampleConnectionMetrics refreshes the gauges and liveness histograms
// that describe the server's current connection set as a whole, rather
// than one discrete occurrence.
func sampleConnectionMetrics(srv *naia.Server, collector *metrics.Collector) {
	conns := srv.Connections()

	var objects, entities int
	for _, c := range conns {
		objects += c.ObjectCount
		entities += c.EntityCount
		collector.ObserveRTT(c.PeerAddress, c.RTTMillis/1000)
		collector.ObserveJitter(c.PeerAddress, c.JitterMillis/1000)
	}
	collector.SetObjectsReplicated(objects)
	collector.SetEntitiesReplicated(entities)
}

func recordEvent(ev naia.Event, collector *metrics.Collector, logger *slog.Logger) {
	switch ev.Kind {
	case naia.EventConnected:
		collector.RegisterConnection()
		logger.Info("connection established", slog.String("peer", ev.Peer))
	case naia.EventDisconnected:
		collector.UnregisterConnection()
		logger.Info("connection closed", slog.String("peer", ev.Peer))
	case naia.EventCommand:
		collector.IncCommandsExecuted(ev.Peer)
	}
}

func normalizeAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "0.0.0.0" + addr
	}
	return addr
}

// -------------------------------------------------------------------------
// Systemd integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		return nil
	}

	tickInterval := interval / 2
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// HTTP server setup
// -------------------------------------------------------------------------

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

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newAdminServer(cfg config.AdminConfig, registry server.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	path, handler := server.New(registry, logger,
		server.LoggingInterceptorOption(logger),
		server.RecoveryInterceptorOption(logger),
	)
	mux.Handle(path, handler)

	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName, "naia.v1.AdminService")
	mux.Handle(grpchealth.NewHandler(checker))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

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

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
