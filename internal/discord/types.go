package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
	"github.com/hunterjsb/doorknock/internal/metrics"
	"github.com/hunterjsb/doorknock/internal/personality"
	"github.com/hunterjsb/doorknock/internal/practice"
)

// DiscordBot represents a Discord bot
type DiscordBot struct {
	Session         *discordgo.Session
	Config          Config
	BotUserID       string
	GuildID         string
	Commands        []*discordgo.ApplicationCommand
	CommandHandlers map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)

	practice      Practice
	ledger        Ledger
	personalities Personalities
	users         Users
	metrics       *metrics.Metrics
	log           zerolog.Logger
	now           func() time.Time
}

// Config holds Discord bot configuration
type Config struct {
	DiscordToken string
	GuildID      string
	// AdminRoleID may approve and reject deals; members with the
	// Administrator permission always can.
	AdminRoleID string
}

// Deps are the services the bot presents.
type Deps struct {
	Practice      Practice
	Ledger        Ledger
	Personalities Personalities
	Users         Users
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
}

// Practice is the session manager. *practice.Manager satisfies it.
type Practice interface {
	Start(ctx context.Context, userID, personalityID string) (*domain.PracticeSession, error)
	SubmitTurn(ctx context.Context, sessionID, text string) (*practice.TurnResult, error)
	End(ctx context.Context, sessionID string) (*domain.Score, error)
	EndWithReason(ctx context.Context, sessionID string, reason domain.EndReason) (*domain.Score, error)
	Active(userID string) (string, bool)
}

// Ledger handles deals and rankings. *ledger.Ledger satisfies it.
type Ledger interface {
	SubmitDeal(ctx context.Context, sub ledger.DealSubmission) (string, error)
	ApproveDeal(ctx context.Context, dealID, approverID string) (int, error)
	RejectDeal(ctx context.Context, dealID, approverID, reason string) error
	GetDeal(ctx context.Context, dealID string) (*domain.Deal, error)
	PendingDeals(ctx context.Context) ([]*domain.Deal, error)
	Rank(ctx context.Context, window domain.Window, asOf time.Time) (ledger.Ranking, error)
	Movement(ctx context.Context, window domain.Window, userID string, asOf time.Time) (ledger.Movement, error)
	UserStats(ctx context.Context, userID string) (ledger.Stats, error)
	PointTable() ledger.PointTable
}

// Personalities is the personality catalog. *personality.Registry satisfies it.
type Personalities interface {
	Get(ctx context.Context, id string) (personality.Profile, error)
	ListFor(ctx context.Context, userID string) ([]personality.Profile, error)
	Create(ctx context.Context, ownerID string, spec personality.Spec) (*personality.CustomProfile, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// Users stores member profiles. *store.Store satisfies it.
type Users interface {
	GetUser(ctx context.Context, id string) (*domain.UserProfile, error)
	PutUser(ctx context.Context, u *domain.UserProfile) error
}
