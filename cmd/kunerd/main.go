package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kuner/internal/audit"
	"kuner/internal/config"
	"kuner/internal/models"
	"kuner/internal/server"
	"kuner/internal/telemetry"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("kunerd failed: %v", err)
	}
}

func run() error {
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if err := config.EnsureConfigDir(cfgPath); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger, err := audit.NewJSONLLogger(cfg.Logging.RequestLog)
	if err != nil {
		return err
	}

	registry, err := models.LoadEmbeddedRegistry()
	if err != nil {
		return err
	}
	modelsRoot, err := models.DefaultModelsRoot()
	if err != nil {
		return err
	}

	tel, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "kunerd",
		Version:  version,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Config:     cfg,
		Registry:   registry,
		ModelsRoot: modelsRoot,
		Logger:     logger,
		Telemetry:  tel,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("kunerd listening on %s", cfg.Server.Addr)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr := srv.Shutdown(ctx)
		_ = tel.Shutdown(ctx)
		return shutdownErr
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
