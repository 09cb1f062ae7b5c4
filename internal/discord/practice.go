package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
	"github.com/hunterjsb/doorknock/internal/personality"
)

func (b *DiscordBot) runPractice(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	switch inv.Subcommand {
	case "start":
		return b.startPractice(ctx, inv)
	case "say":
		return b.sayPractice(ctx, inv)
	case "end":
		return b.endPractice(ctx, inv)
	}
	return nil, domain.Invalid("unknown practice command %q", inv.Subcommand)
}

func (b *DiscordBot) startPractice(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	id := inv.Options.String("personality")
	if id == "" {
		return nil, domain.Invalid("pick a personality, see `/personality list`")
	}
	sess, err := b.practice.Start(ctx, inv.UserID, id)
	if err != nil {
		return nil, err
	}
	profile, err := b.personalities.Get(ctx, sess.PersonalityID)
	if err != nil {
		return nil, err
	}
	return []*discordgo.MessageEmbed{b.formatSessionStarted(sess, profile)}, nil
}

func (b *DiscordBot) sayPractice(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	sessionID, ok := b.practice.Active(inv.UserID)
	if !ok {
		return nil, errNoSession
	}
	message := inv.Options.String("message")
	res, err := b.practice.SubmitTurn(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}

	embeds := []*discordgo.MessageEmbed{b.formatReply(inv.DisplayName, message, res.Reply)}
	if !res.SuggestEnd {
		return embeds, nil
	}

	score, err := b.practice.EndWithReason(ctx, sessionID, domain.EndByNatural)
	switch {
	case errors.Is(err, domain.ErrPartialFailure):
		title, description := describeError(err)
		return append(embeds, errorEmbed(title, description)), nil
	case errors.Is(err, domain.ErrSessionEnded):
		// ended concurrently by /practice end or the reaper
		return embeds, nil
	case err != nil:
		return nil, err
	}
	return append(embeds, b.formatScore(score, ledger.SessionPoints(score, b.ledger.PointTable()), domain.EndByNatural)), nil
}

func (b *DiscordBot) endPractice(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	sessionID, ok := b.practice.Active(inv.UserID)
	if !ok {
		return nil, errNoSession
	}
	score, err := b.practice.End(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return []*discordgo.MessageEmbed{b.formatScore(score, ledger.SessionPoints(score, b.ledger.PointTable()), domain.EndByUser)}, nil
}

func (b *DiscordBot) runPersonality(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error) {
	switch inv.Subcommand {
	case "list":
		profiles, err := b.personalities.ListFor(ctx, inv.UserID)
		if err != nil {
			return nil, err
		}
		return []*discordgo.MessageEmbed{b.formatPersonalityList(profiles)}, nil

	case "create":
		spec := personality.Spec{
			Name:        inv.Options.String("name"),
			Description: inv.Options.String("description"),
			Behavior:    inv.Options.String("behavior"),
			Traits: personality.Traits{
				Aggression:       trait(inv.Options, "aggression"),
				PriceSensitivity: trait(inv.Options, "price_sensitivity"),
				Verbosity:        trait(inv.Options, "verbosity"),
				Patience:         trait(inv.Options, "patience"),
			},
		}
		if opener := inv.Options.String("opener"); opener != "" {
			spec.Starters = []string{opener}
		}
		p, err := b.personalities.Create(ctx, inv.UserID, spec)
		if err != nil {
			return nil, err
		}
		return []*discordgo.MessageEmbed{b.formatPersonalityCreated(p)}, nil

	case "delete":
		id := inv.Options.String("id")
		if err := b.personalities.Delete(ctx, inv.UserID, id); err != nil {
			return nil, err
		}
		return []*discordgo.MessageEmbed{{
			Title:       "🗑️ Personality Deleted",
			Description: "`" + id + "` is no longer available for new sessions.",
			Color:       colorNeutral,
		}}, nil
	}
	return nil, domain.Invalid("unknown personality command %q", inv.Subcommand)
}

// trait maps a 0-10 option onto the [0,1] trait scale.
func trait(opts Options, name string) float64 {
	return float64(opts.Int(name, 5)) / 10
}
