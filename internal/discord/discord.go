package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
)

// commandTimeout bounds the work behind one interaction. Interaction tokens
// stay valid for 15 minutes, so a slow partner reply still gets delivered.
const commandTimeout = 2 * time.Minute

func nicheChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(domain.Niches))
	for _, n := range domain.Niches {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(n), Value: string(n)})
	}
	return choices
}

var windowChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "weekly", Value: string(domain.Weekly)},
	{Name: "monthly", Value: string(domain.Monthly)},
	{Name: "all-time", Value: string(domain.AllTime)},
}

var (
	traitMin      = float64(0)
	minDealAmount = float64(0)
)

func traitOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description + " (0-10, default 5)",
		MinValue:    &traitMin,
		MaxValue:    10,
	}
}

// Command definitions
var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "register",
		Description: "Register or update your sales profile",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "niche",
				Description: "What you sell",
				Required:    true,
				Choices:     nicheChoices(),
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "experience",
				Description: "Your experience level (e.g. 'rookie', '2 years')",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "role",
				Description: "Setter, closer or both",
			},
		},
	},
	{
		Name:        "practice",
		Description: "Practice a door knock with an AI homeowner",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start a practice session",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "personality",
						Description: "Personality id (owl, bull, sheep, tiger or a custom id)",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "say",
				Description: "Say something to the homeowner",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message",
						Description: "What you say at the door",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "end",
				Description: "End your session and get scored",
			},
		},
	},
	{
		Name:        "personality",
		Description: "Manage practice personalities",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List the personalities you can practice against",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "create",
				Description: "Create a custom personality",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "name",
						Description: "Display name",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "description",
						Description: "Who the homeowner is",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "behavior",
						Description: "How they act at the door",
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "opener",
						Description: "The first thing they say",
					},
					traitOption("aggression", "How confrontational they are"),
					traitOption("price_sensitivity", "How much price matters"),
					traitOption("verbosity", "How much they talk"),
					traitOption("patience", "How long they tolerate a pitch"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "delete",
				Description: "Delete one of your custom personalities",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "id",
						Description: "Personality id",
						Required:    true,
					},
				},
			},
		},
	},
	{
		Name:        "deal",
		Description: "Submit and review closed deals",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "submit",
				Description: "Submit a deal for approval",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "role",
						Description: "Your part in the deal",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "setter", Value: string(domain.RoleSetter)},
							{Name: "closer", Value: string(domain.RoleCloser)},
							{Name: "self-generated", Value: string(domain.RoleSelfGenerated)},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionNumber,
						Name:        "amount",
						Description: "Contract value (default 0)",
						MinValue:    &minDealAmount,
						MaxValue:    ledger.MaxDealAmount.InexactFloat64(),
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "niche",
						Description: "Product line (default: your registered niche)",
						Choices:     nicheChoices(),
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "description",
						Description: "Anything the reviewer should know",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "pending",
				Description: "List deals waiting for review (admins)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "approve",
				Description: "Approve a pending deal (admins)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "id",
						Description: "Deal id",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reject",
				Description: "Reject a pending deal (admins)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "id",
						Description: "Deal id",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "reason",
						Description: "Why it was rejected",
					},
				},
			},
		},
	},
	{
		Name:        "leaderboard",
		Description: "Show the points leaderboard",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "window",
				Description: "Time window (default: weekly)",
				Choices:     windowChoices,
			},
		},
	},
	{
		Name:        "stats",
		Description: "Show deal and practice stats",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "Whose stats to show (default: yours)",
			},
		},
	},
}

// invocation is a parsed slash command.
type invocation struct {
	UserID      string
	DisplayName string
	Admin       bool
	Subcommand  string
	Options     Options
}

type commandFunc func(ctx context.Context, inv invocation) ([]*discordgo.MessageEmbed, error)

// NewDiscordBot creates a new Discord bot with the provided configuration
func NewDiscordBot(config Config, deps Deps) (*DiscordBot, error) {
	session, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	bot := newBot(config, deps)
	bot.Session = session
	return bot, nil
}

func newBot(config Config, deps Deps) *DiscordBot {
	bot := &DiscordBot{
		Config:          config,
		GuildID:         config.GuildID,
		CommandHandlers: make(map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)),
		practice:        deps.Practice,
		ledger:          deps.Ledger,
		personalities:   deps.Personalities,
		users:           deps.Users,
		metrics:         deps.Metrics,
		log:             deps.Log.With().Str("component", "discord").Logger(),
		now:             time.Now,
	}

	// Set up command handlers
	bot.CommandHandlers["register"] = bot.handle("register", bot.runRegister)
	bot.CommandHandlers["practice"] = bot.handle("practice", bot.runPractice)
	bot.CommandHandlers["personality"] = bot.handle("personality", bot.runPersonality)
	bot.CommandHandlers["deal"] = bot.handle("deal", bot.runDeal)
	bot.CommandHandlers["leaderboard"] = bot.handle("leaderboard", bot.runLeaderboard)
	bot.CommandHandlers["stats"] = bot.handle("stats", bot.runStats)

	return bot
}

// Start starts the Discord bot
func (b *DiscordBot) Start() error {
	// Get bot user ID
	user, err := b.Session.User("@me")
	if err != nil {
		return fmt.Errorf("error getting bot user: %w", err)
	}
	b.BotUserID = user.ID

	b.Session.AddHandler(b.interactionHandler)

	// Open a websocket connection to Discord
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening Discord session: %w", err)
	}

	registeredCommands, err := b.registerCommands()
	if err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	b.Commands = registeredCommands

	b.log.Info().Str("guild", b.GuildID).Int("commands", len(registeredCommands)).Msg("Bot is now running with slash commands registered")
	return nil
}

// Stop removes the registered commands and closes the session
func (b *DiscordBot) Stop() error {
	b.log.Info().Msg("Removing commands")
	for _, cmd := range b.Commands {
		if err := b.Session.ApplicationCommandDelete(b.Session.State.User.ID, b.GuildID, cmd.ID); err != nil {
			b.log.Warn().Err(err).Str("command", cmd.Name).Msg("Error removing command")
		}
	}

	return b.Session.Close()
}

// registerCommands registers the defined slash commands
func (b *DiscordBot) registerCommands() ([]*discordgo.ApplicationCommand, error) {
	registeredCommands := make([]*discordgo.ApplicationCommand, len(commands))

	for i, cmd := range commands {
		registered, err := b.Session.ApplicationCommandCreate(b.Session.State.User.ID, b.GuildID, cmd)
		if err != nil {
			return nil, fmt.Errorf("error creating command '%s': %w", cmd.Name, err)
		}
		registeredCommands[i] = registered
	}

	return registeredCommands, nil
}

// interactionHandler handles Discord interaction events
func (b *DiscordBot) interactionHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if handler, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
		handler(s, i)
	}
}

// handle adapts a command to the discordgo handler signature: the response is
// deferred, the command runs, and the deferred message is edited with the result.
func (b *DiscordBot) handle(name string, run commandFunc) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			b.log.Error().Err(err).Str("command", name).Msg("Error deferring response")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		inv := b.parseInvocation(i)
		embeds, err := run(ctx, inv)
		if err != nil {
			b.metrics.Command(name, "error")
			b.logCommandError(name, inv, err)
			title, description := describeError(err)
			b.sendError(s, i, title, description)
			return
		}
		b.metrics.Command(name, "ok")

		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Embeds: &embeds,
		}); err != nil {
			b.log.Error().Err(err).Str("command", name).Msg("Error editing response")
		}
	}
}

func (b *DiscordBot) parseInvocation(i *discordgo.InteractionCreate) invocation {
	sub, opts := ParseOptions(i.ApplicationCommandData().Options)
	inv := invocation{Subcommand: sub, Options: opts}

	user := i.User
	if i.Member != nil {
		user = i.Member.User
		inv.Admin = i.Member.Permissions&discordgo.PermissionAdministrator != 0 ||
			hasRole(i.Member.Roles, b.Config.AdminRoleID)
		if i.Member.Nick != "" {
			inv.DisplayName = i.Member.Nick
		}
	}
	if user != nil {
		inv.UserID = user.ID
		if inv.DisplayName == "" {
			inv.DisplayName = displayName(user)
		}
	}
	return inv
}

func (b *DiscordBot) logCommandError(name string, inv invocation, err error) {
	event := b.log.Warn()
	if !expected(err) {
		event = b.log.Error()
	}
	event.Err(err).Str("command", name).Str("subcommand", inv.Subcommand).Str("user", inv.UserID).Msg("Command failed")
}

// sendError sends an error embed
func (b *DiscordBot) sendError(s *discordgo.Session, i *discordgo.InteractionCreate, title, description string) {
	embed := errorEmbed(title, description)

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}); err != nil {
		b.log.Error().Err(err).Msg("Error editing error response")
	}
}

// expected reports whether err is a user-facing outcome rather than a fault.
func expected(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidInput, domain.ErrAlreadyActive, domain.ErrSessionBusy, domain.ErrSessionEnded,
		domain.ErrNotFound, domain.ErrNotOwner, domain.ErrNotRegistered, domain.ErrDealDecided,
		errNotAdmin, errNoSession,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
