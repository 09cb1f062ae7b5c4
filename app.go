package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hunterjsb/doorknock/internal/config"
	"github.com/hunterjsb/doorknock/internal/ledger"
	"github.com/hunterjsb/doorknock/internal/logger"
	"github.com/hunterjsb/doorknock/internal/metrics"
	"github.com/hunterjsb/doorknock/internal/personality"
	"github.com/hunterjsb/doorknock/internal/store"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	store    *store.Store
	registry *personality.Registry
	ledger   *ledger.Ledger
	table    ledger.PointTable
}

// openApp loads configuration and opens the store. online selects the full
// validation needed to reach Discord and OpenAI.
func openApp(online bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	validate := cfg.ValidateOffline
	if online {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	table := ledger.DefaultPointTable()
	if cfg.PointTablePath != "" {
		if table, err = ledger.LoadPointTable(cfg.PointTablePath); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.PointTablePath).Str("version", table.Version).Msg("Point table loaded")
	}

	db, err := store.Open(store.Config{Path: cfg.DBPath, Log: log})
	if err != nil {
		return nil, err
	}

	m := metrics.Default()
	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		store:    db,
		registry: personality.NewRegistry(db, cfg.PersonalityKeep, cfg.PersonalityTTL, log),
		ledger:   ledger.New(db, table, log, m),
		table:    table,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
