package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all vaultd configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath           string `json:"db_path"`
	LogLevel         string `json:"log_level"`
	AutoLockMinutes  int    `json:"auto_lock_minutes"`
	SweepSchedule    string `json:"sweep_schedule"`
	VacuumOnShutdown bool   `json:"vacuum_on_shutdown"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(vaultDir(), "vault.db"),
		LogLevel:        "info",
		AutoLockMinutes: 30,
		SweepSchedule:   "0 * * * *",
	}
}

func vaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agency-vault"
	}
	return filepath.Join(home, ".agency-vault")
}

func settingsPath() string {
	return filepath.Join(vaultDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("VAULT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("VAULT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VAULT_AUTO_LOCK_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AutoLockMinutes = n
		}
	}
	if v := os.Getenv("VAULT_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("VAULT_VACUUM_ON_SHUTDOWN"); v != "" {
		cfg.VacuumOnShutdown = v == "true" || v == "1"
	}

	return cfg
}
