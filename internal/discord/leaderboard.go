package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
)

func (b *DiscordBot) runLeaderboard(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	window, err := domain.ParseWindow(inv.Options.String("window"))
	if err != nil {
		return nil, err
	}
	asOf := b.now().UTC()

	ranking, err := b.ledger.Rank(ctx, window, asOf)
	if err != nil {
		return nil, err
	}
	movement, err := b.ledger.Movement(ctx, window, inv.UserID, asOf)
	if err != nil {
		return nil, err
	}
	return []*discordgo.MessageEmbed{b.formatLeaderboard(ranking, movement)}, nil
}

func (b *DiscordBot) runStats(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	userID := inv.Options.UserID("user")
	if userID == "" {
		userID = inv.UserID
	}

	var (
		user    *domain.UserProfile
		stats   ledger.Stats
		ranking ledger.Ranking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = b.users.GetUser(gctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotRegistered)
		}
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = b.ledger.UserStats(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		ranking, err = b.ledger.Rank(gctx, domain.Weekly, b.now().UTC())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	weekly, _ := ranking.Entry(userID)
	return []*discordgo.MessageEmbed{b.formatStats(user, stats, weekly)}, nil
}
