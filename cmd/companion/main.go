package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/pawnest/companion/internal/api"
	"github.com/pawnest/companion/internal/app"
	"github.com/pawnest/companion/internal/feed"
	"github.com/pawnest/companion/internal/identity"
	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/store"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := createLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Fatal("creating data directory", zap.Error(err))
	}

	kv, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("opening local store", zap.Error(err))
	}
	defer kv.Close()

	session := identity.NewSession(kv)
	client := api.NewClient(cfg.API.BaseURL, cfg.RequestTimeout())
	feedStore := feed.NewStore(kv, client, session, logger, cfg.FetchDebounce())

	logger.Info("starting companion",
		zap.String("config", *configPath),
		zap.String("db", cfg.DBPath),
	)

	root := app.New(feedStore, session, cfg, *configPath)
	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Fatal("running UI", zap.Error(err))
	}
}

// createLogger builds a JSON file logger. Stdout belongs to the TUI,
// so logs always go to the configured path.
func createLogger(cfg model.LogConfig) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch cfg.Level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{cfg.Path},
		ErrorOutputPaths: []string{cfg.Path},
	}

	return config.Build()
}
