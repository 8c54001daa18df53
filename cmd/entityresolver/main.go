// Package main is the entry point for the entity resolution engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metaspn/entityresolver/internal/config"
	"github.com/metaspn/entityresolver/internal/encryption"
	"github.com/metaspn/entityresolver/internal/hermes"
	"github.com/metaspn/entityresolver/internal/server"
	"github.com/metaspn/entityresolver/internal/store"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("RESOLVER_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Encryption for identifier values at rest — optional, opt-in.
	var codec *encryption.Encryptor
	if cfg.EncryptionKey != "" {
		codec, err = encryption.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			logger.Warn("failed to initialize encryptor, storing identifier values in plaintext", "error", err)
			codec = nil
		}
	}

	s, err := newStore(ctx, cfg, codec)
	if err != nil {
		logger.Error("failed to initialize store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer s.Close()
	logger.Info("store initialized", "backend", s.Name())

	// Hermes (NATS) — optional, the engine works without it.
	var hermesClient *hermes.Client
	if cfg.HermesEnabled && cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(cfg.NatsURL, logger)
		if err != nil {
			logger.Warn("failed to connect to Hermes (NATS), running without event bus", "error", err)
			hermesClient = nil
		} else {
			defer hermesClient.Close()
			logger.Info("connected to Hermes (NATS)", "url", cfg.NatsURL)
		}
	}

	srv := server.New(cfg, s, hermesClient, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("entity resolution engine starting", "port", cfg.Port, "store_backend", cfg.StoreBackend)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("entity resolution engine stopped")
}

// newStore selects and constructs the configured store.Store backend.
func newStore(ctx context.Context, cfg *config.Config, codec *encryption.Encryptor) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		// codec is typed nil here if unset; pass a true nil interface value
		// instead so PostgresStore's "codec == nil" no-op check still fires.
		if codec == nil {
			return store.NewPostgresStore(ctx, cfg.DatabaseURL, nil)
		}
		return store.NewPostgresStore(ctx, cfg.DatabaseURL, codec)
	case config.StoreBackendBolt:
		return store.NewBoltStore(cfg.BoltPath)
	case config.StoreBackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
