package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/openhearth/casefile/internal/api"
	"github.com/openhearth/casefile/internal/audit"
	"github.com/openhearth/casefile/internal/authz"
	"github.com/openhearth/casefile/internal/models"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Optional .env for local development; env vars win over the YAML file.
	_ = godotenv.Load()

	cfg, err := LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting casefile API")

	// A gap in the permission matrix is a boot failure, not a runtime deny.
	if err := authz.ValidateMatrix(); err != nil {
		slog.Error("invalid permission matrix", "error", err)
		os.Exit(1)
	}

	db, err := models.InitDB(cfg.Server.DatabasePath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	nc, err := audit.Connect(cfg.Audit.NATSURL)
	if err != nil {
		slog.Error("failed to connect to NATS for audit publication", "error", err)
		os.Exit(1)
	}
	if nc != nil {
		slog.Info("audit events will be published", "subject", audit.Subject)
		defer nc.Close()
	}

	srv := api.NewServer(db, audit.NewRecorder(db, nc), cfg.Server.TokenSecret)

	// Start server in background.
	go func() {
		if err := srv.Listen(cfg.Server.ListenAddr); err != nil {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down casefile API")
	if err := srv.Shutdown(); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
