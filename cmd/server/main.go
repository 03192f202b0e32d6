package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/mdguard/internal/api"
	"github.com/dgallion1/mdguard/internal/config"
	"github.com/dgallion1/mdguard/internal/ledger"
	"github.com/dgallion1/mdguard/internal/pathstore"
	"github.com/dgallion1/mdguard/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := pipeline.Deps{Stats: pipeline.NewParseStats(time.Hour)}

	var ps *pathstore.Client
	if cfg.PathstoreURL != "" {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		deps.Sink = ps
	} else {
		log.Info("pathstore sink disabled")
	}

	var led *ledger.Ledger
	if cfg.LedgerPath != "" {
		var err error
		led, err = ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			log.Error("open ledger", "path", cfg.LedgerPath, "error", err)
			os.Exit(1)
		}
		deps.Ledger = led
	} else {
		log.Info("verdict ledger disabled")
	}

	orch := pipeline.NewOrchestrator(cfg, deps, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, ps, led, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		if ps != nil {
			ps.Close()
		}
		if led != nil {
			led.Close()
		}
	}()

	log.Info("starting mdguard", "port", cfg.Port, "default_profile", cfg.DefaultProfile)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
