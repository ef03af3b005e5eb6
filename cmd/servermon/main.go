package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/checker"
	"github.com/hamed0406/servermon/internal/config"
	"github.com/hamed0406/servermon/internal/events"
	"github.com/hamed0406/servermon/internal/httpapi"
	apimw "github.com/hamed0406/servermon/internal/httpapi/middleware"
	"github.com/hamed0406/servermon/internal/logging"
	"github.com/hamed0406/servermon/internal/monitor"
	"github.com/hamed0406/servermon/internal/persist"
	"github.com/hamed0406/servermon/internal/probe"
	"github.com/hamed0406/servermon/internal/repo/memory"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("SERVERMON_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("servermon_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	pinger := probe.NewICMPPinger(logger, cfg.PingPrivileged, cfg.PingTimeout())
	prober := probe.NewProber(logger, pinger, cfg.PortTimeout(), cfg.PingTimeout())
	chk := checker.New(logger, prober, cfg.Concurrency)

	state := persist.File{Path: cfg.StatePath}
	mon := monitor.New(logger, memory.New(), chk, events.NewHub(), monitor.Options{
		Interval: cfg.Interval(),
		Tick:     cfg.Tick(),
		State:    state,
	})

	loaded := false
	if state.Exists() {
		loaded = mon.Import(ctx) == nil
	}
	if !loaded {
		seed(ctx, mon, cfg.Endpoints, logger)
	}
	mon.Start()

	api := httpapi.NewServer(logger, mon)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.RouterOptions{
			Keys:           apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			AllowedOrigins: cfg.AllowedOrigins,
			CheckRPM:       cfg.CheckRPM,
			CheckBurst:     cfg.CheckBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("state_path", cfg.StatePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify_failed", zap.Error(err))
	} else if ok {
		logger.Debug("sd_notify_ready")
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case serveErr = <-errCh:
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	mon.Stop()

	if cfg.SaveOnExit {
		// Export logs its own failure; exit still proceeds.
		_ = mon.Export(context.Background())
	}
	return serveErr
}

// seed adds the configured endpoints. Rejected entries are logged by the
// monitor and skipped.
func seed(ctx context.Context, mon *monitor.Monitor, seeds []config.SeedEndpoint, logger *zap.Logger) {
	added := 0
	for _, s := range seeds {
		if _, err := mon.AddEndpoint(ctx, s.Name, s.IP, s.Ports); err == nil {
			added++
		}
	}
	if len(seeds) > 0 {
		logger.Info("endpoints_seeded", zap.Int("added", added), zap.Int("configured", len(seeds)))
	}
}
