/*
Package main is the entry point for the QuickChat server.

It is responsible for loading configuration, initializing the global logging system,
opening the message store, starting the relay Hub and the HTTP server,
and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quickchat/internal/app/chat"
	"quickchat/internal/app/db"
	"quickchat/internal/app/presence"
	"quickchat/internal/app/storage"
	"quickchat/internal/app/store"
	"quickchat/internal/configs"
	"quickchat/internal/handler"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/pow"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Str("store_driver", cfg.StoreDriver).
		Bool("avatar_storage", cfg.AvatarStorageEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open message store")
	}
	defer closeStore()

	if cfg.SeedUsers {
		seeded, err := store.Seed(ctx, st)
		if err != nil {
			logx.Fatal(err, "Failed to seed users")
		}
		logx.Info("Seed users ready", "count", len(seeded), "password", store.SeedPassword)
	}

	var storageService storage.StorageService
	if cfg.AvatarStorageEnabled() {
		storageService, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize avatar storage")
		}
	}

	powManager := pow.NewManager(cfg.PowDifficulty)
	defer powManager.Close()

	// Start the relay
	hub := chat.NewHub(st, presence.NewRegistry())
	go hub.Run()

	router := handler.Router(&handler.AppDeps{
		Hub:     hub,
		Config:  cfg,
		Store:   st,
		Pow:     powManager,
		Storage: storageService,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("QuickChat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Closing the Hub sends a close frame on every open socket.
	hub.Stop()

	logx.Info("Server gracefully stopped.")
}

// openStore returns the configured store and a function releasing its resources.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, func(), error) {
	if cfg.StoreDriver == configs.StoreDriverMemory {
		logx.Warn("Using in-memory store; all data is lost on restart.")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(pool), pool.Close, nil
}
