package discord

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
)

func (b *DiscordBot) runRegister(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	niche, err := domain.ParseNiche(inv.Options.String("niche"))
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	user, err := b.users.GetUser(ctx, inv.UserID)
	created := errors.Is(err, domain.ErrNotFound)
	switch {
	case created:
		user = &domain.UserProfile{ID: inv.UserID, CreatedAt: now}
	case err != nil:
		return nil, err
	}
	user.DisplayName = inv.DisplayName
	user.Niche = niche
	if v := inv.Options.String("experience"); v != "" {
		user.ExperienceLevel = v
	}
	if v := inv.Options.String("role"); v != "" {
		user.RoleType = strings.ToLower(v)
	}
	user.UpdatedAt = now
	if err := b.users.PutUser(ctx, user); err != nil {
		return nil, err
	}

	b.log.Info().Str("user", user.ID).Str("niche", string(niche)).Bool("created", created).Msg("User registered")
	return []*discordgo.MessageEmbed{b.formatRegistered(user, created)}, nil
}

func (b *DiscordBot) runDeal(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	switch inv.Subcommand {
	case "submit":
		role, err := domain.ParseDealRole(inv.Options.String("role"))
		if err != nil {
			return nil, err
		}
		sub := ledger.DealSubmission{
			SubmitterID: inv.UserID,
			Role:        role,
			Amount:      decimal.Zero,
			Description: inv.Options.String("description"),
		}
		if v, ok := inv.Options.Float("amount"); ok {
			sub.Amount = decimal.NewFromFloat(v).Round(2)
		}
		if v := inv.Options.String("niche"); v != "" {
			if sub.Niche, err = domain.ParseNiche(v); err != nil {
				return nil, err
			}
		}
		id, err := b.ledger.SubmitDeal(ctx, sub)
		if err != nil {
			return nil, err
		}
		deal, err := b.ledger.GetDeal(ctx, id)
		if err != nil {
			return nil, err
		}
		return []*discordgo.MessageEmbed{b.formatDeal(deal)}, nil

	case "pending":
		if !inv.Admin {
			return nil, errNotAdmin
		}
		deals, err := b.ledger.PendingDeals(ctx)
		if err != nil {
			return nil, err
		}
		return []*discordgo.MessageEmbed{b.formatPendingDeals(deals)}, nil

	case "approve", "reject":
		if !inv.Admin {
			return nil, errNotAdmin
		}
		id := inv.Options.String("id")
		var err error
		if inv.Subcommand == "approve" {
			_, err = b.ledger.ApproveDeal(ctx, id, inv.UserID)
		} else {
			err = b.ledger.RejectDeal(ctx, id, inv.UserID, inv.Options.String("reason"))
		}
		if err != nil {
			return nil, err
		}
		deal, err := b.ledger.GetDeal(ctx, id)
		if err != nil {
			return nil, err
		}
		return []*discordgo.MessageEmbed{b.formatDeal(deal)}, nil
	}
	return nil, domain.Invalid("unknown deal command %q", inv.Subcommand)
}
