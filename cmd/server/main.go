// Command server runs one simulated OCPP 1.6-J charging station and its
// HTTP control surface.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruslanhut/ocpp-emu/internal/auth"
	"github.com/ruslanhut/ocpp-emu/internal/config"
	"github.com/ruslanhut/ocpp-emu/internal/control"
	"github.com/ruslanhut/ocpp-emu/internal/logging"
	"github.com/ruslanhut/ocpp-emu/internal/supervisor"
)

const (
	appName    = "ocpp-emu"
	appVersion = "0.1.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("error loading config: %v", err)
		os.Exit(1)
	}

	logger := logging.New(cfg)
	logger.Info("starting ocpp emulator", "version", appVersion, "app", appName, "cs_id", cfg.CSID)

	authSvc, err := auth.NewService(cfg.AuthToken)
	if err != nil {
		logger.Error("failed to initialize auth service", "error", err)
		os.Exit(1)
	}
	if !authSvc.Enabled() {
		logger.Warn("AUTH_TOKEN not set, control surface is unauthenticated")
	}

	sup := supervisor.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start charging station", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	handler := control.NewHandler(sup.Station(), authSvc, logger)
	mux.Handle("/", handler.Mux())
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting http server", "address", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", "error", err)
	}

	sup.Stop(10 * time.Second)

	logger.Info(fmt.Sprintf("%s stopped", appName))
}
