package main

import (
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"tablectl/internal/config"
)

// initConfig loads the YAML config file. A missing file falls back to
// config.Default().
func initConfig(path string) (config.Config, error) {
	var cfg config.Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return config.Default(), nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// initLogger configures the global slog.Logger (JSON or text).
func initLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.Logger.Level {
	case "DEBUG", "debug":
		level = slog.LevelDebug
	case "WARN", "warn":
		level = slog.LevelWarn
	case "ERROR", "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
}
