package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/homebudget/internal/backup"
	"github.com/dukerupert/homebudget/internal/config"
	"github.com/dukerupert/homebudget/internal/database"
	"github.com/dukerupert/homebudget/internal/events"
	"github.com/dukerupert/homebudget/internal/logging"
	"github.com/dukerupert/homebudget/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) > 1 && os.Args[1] == "restore" {
		if err := restore(cfg, os.Args[2:], logger); err != nil {
			logger.Error("restore failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("homebudget exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var broker events.Publisher
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		broker = amqpPub
		logger.Info("publishing change events", "exchange", cfg.AMQPExchange)
	}

	srv := server.New(db, server.Options{
		JWTSecret:       cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, broker, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("homebudget starting", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-gctx.Done():
				return nil
			}
		}
	})

	if cfg.BackupEnabled() {
		backups := backup.NewManager(backupConfig(cfg), db, logger)
		logger.Info("database snapshots enabled", "bucket", cfg.BackupS3Bucket, "interval", cfg.BackupInterval)
		g.Go(func() error {
			return backups.Run(gctx, cfg.BackupInterval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func backupConfig(cfg *config.Config) backup.Config {
	return backup.Config{
		Endpoint:   cfg.BackupS3Endpoint,
		Bucket:     cfg.BackupS3Bucket,
		Region:     cfg.BackupS3Region,
		AccessKey:  cfg.BackupS3AccessKey,
		SecretKey:  cfg.BackupS3SecretKey,
		Prefix:     cfg.BackupS3Prefix,
		Passphrase: cfg.BackupPassphrase,
		Retention:  cfg.BackupRetention,
	}
}

// restore replaces DB_PATH with a snapshot from the backup bucket. Run it
// while the server is stopped.
func restore(cfg *config.Config, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	key := fs.String("key", "", "object key of the snapshot (default: latest)")
	dbPath := fs.String("db", cfg.DBPath, "database file to replace")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !cfg.BackupEnabled() {
		return errors.New("backup bucket is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backups := backup.NewManager(backupConfig(cfg), nil, logger)
	if *key == "" {
		latest, err := backups.Latest(ctx)
		if err != nil {
			return err
		}
		*key = latest
	}
	return backups.Restore(ctx, *key, *dbPath)
}
