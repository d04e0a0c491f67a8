package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flightbase/logbook/internal/api"
	"github.com/flightbase/logbook/internal/config"
	"github.com/flightbase/logbook/internal/migrate"
	"github.com/flightbase/logbook/internal/netmon"
	"github.com/flightbase/logbook/internal/remote"
	"github.com/flightbase/logbook/internal/store"
	"github.com/flightbase/logbook/internal/syncer"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "logbook",
	Short: "Logbook - offline-first flight log engine",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(airportsCmd)
	rootCmd.AddCommand(statsCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	initLogger(cfg)
	slog.Info("configuration loaded")

	// 4. Open database and ensure schema
	db, err := store.OpenDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	mgr := migrate.NewManager(db, migrate.Steps, time.Duration(cfg.Migrate.CheckThrottle))
	if err := mgr.EnsureSchema(ctx); err != nil {
		return err
	}
	s := store.New(db)
	slog.Info("store initialized", "path", cfg.Database.Path, "schema_version", mgr.Target())

	// 5. Remote client bound to this device's identity
	deviceID, err := s.DeviceID(ctx)
	if err != nil {
		return err
	}
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, deviceID,
		time.Duration(cfg.Remote.Timeout))
	slog.Info("remote client initialized", "base_url", cfg.Remote.BaseURL, "device_id", deviceID)

	// 6. Connectivity monitor
	monitor := netmon.NewPingMonitor(client, time.Minute)

	// 7. Sync orchestrator
	orch := syncer.New(s, client, monitor, syncer.Options{
		BatchLimit:     cfg.Sync.BatchLimit,
		StrictResponse: cfg.Sync.StrictResponse,
	})

	// 8. Background scheduler: the periodic silent pass
	sched := syncer.NewScheduler(ctx)
	if err := sched.Register(cfg.Sync.TaskID, time.Duration(cfg.Sync.Interval), orch.RunBackground); err != nil {
		return err
	}

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "netmon", monitor.Run)

	// 9. Local control surface
	handler := api.NewHandler(s, orch, cfg.Server.APIKey, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error after a graceful Shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	sched.Wait()
	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func initLogger(cfg *config.Config) {
	level := parseLogLevel(cfg.Log.Level)
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects
// context cancellation.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
