package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xandr001/qwics/internal/exec"
	"github.com/xandr001/qwics/internal/logger"
	"github.com/xandr001/qwics/internal/metrics"
	"github.com/xandr001/qwics/internal/program"
	"github.com/xandr001/qwics/internal/session"
	"github.com/xandr001/qwics/internal/sqlbridge"
	"github.com/xandr001/qwics/pkg/config"
	"github.com/xandr001/qwics/pkg/field"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transaction monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}
	log := logger.With("component", "server")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlbridge.NewPool(ctx, cfg.Database.ConnectString, cfg.Database.PoolSize)
	if err != nil {
		return err
	}
	defer db.Close()

	loader := program.NewPluginLoader(cfg.LoadModDir)
	mon, err := exec.NewMonitor(loader, db, cfg.SharedArenaSize, cfg.MemPoolSize, cfg.JSDir,
		field.DateFormats{Display: cfg.DateFormat, DB: field.DefaultDateFormats.DB})
	if err != nil {
		return err
	}
	driver := session.NewDriver(mon)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, log)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	log.Info("transaction monitor listening",
		"addr", cfg.Listen,
		"loadmod_dir", cfg.LoadModDir,
		"pool_size", cfg.Database.PoolSize)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("accept failed", "error", err)
			continue
		}
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			driver.Serve(ctx, c, c.RemoteAddr().String())
		}(conn)
	}

	log.Info("shutting down, draining sessions")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("session drain timed out")
	}
	return nil
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server failed", "error", err)
	}
}
