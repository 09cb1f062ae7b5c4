package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hunterjsb/doorknock/internal/discord"
	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/gateway"
	"github.com/hunterjsb/doorknock/internal/practice"
	"github.com/hunterjsb/doorknock/internal/scheduler"
	"github.com/hunterjsb/doorknock/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot, snapshot scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	cfg := a.cfg

	partner := gateway.New(gateway.Config{
		APIKey:          cfg.OpenAIToken,
		Model:           cfg.Model,
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
		Timeout:         cfg.GatewayTimeout,
		MaxPromptTokens: cfg.MaxPromptTokens,
	}, a.log, a.metrics)

	manager := practice.NewManager(practice.Config{
		IdleTimeout:          cfg.IdleTimeout,
		MaxTurns:             cfg.MaxTurns,
		PointTable:           a.table,
		UserTurnsPerMinute:   cfg.UserTurnsPerMinute,
		GlobalTurnsPerMinute: cfg.GlobalTurnsPerMinute,
	}, a.store, partner, a.registry, a.log, a.metrics)

	restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := manager.Restore(restoreCtx)
	cancel()
	if err != nil {
		_ = a.Close()
		return err
	}
	a.log.Info().Int("sessions", restored).Msg("Practice sessions restored")
	stopReaper := manager.StartReaper(cfg.ReaperInterval)

	sched := scheduler.New(a.log)
	if err := sched.AddJob(cfg.SnapshotWeeklyCron, scheduler.NewSnapshotJob(a.ledger, domain.Weekly, a.log)); err != nil {
		_ = a.Close()
		return err
	}
	if err := sched.AddJob(cfg.SnapshotMonthlyCron, scheduler.NewSnapshotJob(a.ledger, domain.Monthly, a.log)); err != nil {
		_ = a.Close()
		return err
	}
	sched.Start()

	srv := server.New(server.Config{
		Addr:        cfg.HTTPAddr,
		Log:         a.log,
		DB:          a.store,
		Leaderboard: a.ledger,
		Snapshots:   a.store,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	bot, err := discord.NewDiscordBot(discord.Config{
		DiscordToken: cfg.DiscordToken,
		GuildID:      cfg.GuildID,
		AdminRoleID:  cfg.AdminRoleID,
	}, discord.Deps{
		Practice:      manager,
		Ledger:        a.ledger,
		Personalities: a.registry,
		Users:         a.store,
		Metrics:       a.metrics,
		Log:           a.log,
	})
	if err == nil {
		err = bot.Start()
	}
	if err != nil {
		stopReaper()
		sched.Stop()
		_ = srv.Shutdown(context.Background())
		_ = a.Close()
		return err
	}

	// Set up graceful shutdown
	discord.SetupCloseHandler(a.log, func() error {
		stopReaper()
		sched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
		botErr := bot.Stop()
		return errors.Join(botErr, a.Close())
	})

	a.log.Info().Msg("Bot is now running. Press CTRL-C to exit.")
	select {}
}
