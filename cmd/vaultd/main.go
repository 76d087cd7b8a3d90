package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/the-agency-ai/secretvault/internal/logging"
	"github.com/the-agency-ai/secretvault/internal/store"
	"github.com/the-agency-ai/secretvault/internal/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vaultd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	base := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(logging.NewCorrelationHandler(base))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	session := vault.NewSession(st, logger,
		vault.WithAutoLockWindow(time.Duration(cfg.AutoLockMinutes)*time.Minute))
	svc := vault.NewService(st, session, logger)

	sweeper, err := vault.NewSweeper(st, session, logger, cfg.SweepSchedule)
	if err != nil {
		return err
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	status, err := svc.GetVaultStatus(ctx)
	if err != nil {
		return err
	}
	logger.Info("vaultd ready",
		slog.String("db_path", cfg.DBPath),
		slog.String("status", string(status.Status)),
		slog.Int("auto_lock_minutes", cfg.AutoLockMinutes))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", slog.String("signal", s.String()))

	// Wipe key material before exit.
	session.Lock()
	if cfg.VacuumOnShutdown {
		if err := st.Vacuum(ctx); err != nil {
			logger.Warn("vacuum failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
