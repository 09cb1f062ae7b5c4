package discord

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
	"github.com/hunterjsb/doorknock/internal/personality"
	"github.com/hunterjsb/doorknock/internal/practice"
)

type fakePractice struct {
	active     map[string]string
	turn       *practice.TurnResult
	turnErr    error
	score      *domain.Score
	endErr     error
	endReasons []domain.EndReason
}

func (f *fakePractice) Start(_ context.Context, userID, personalityID string) (*domain.PracticeSession, error) {
	return &domain.PracticeSession{
		ID:            "s-new",
		UserID:        userID,
		PersonalityID: personalityID,
		Transcript:    domain.Transcript{{Speaker: domain.SpeakerPartner, Text: "Who is it?"}},
		State:         domain.SessionActive,
	}, nil
}

func (f *fakePractice) SubmitTurn(context.Context, string, string) (*practice.TurnResult, error) {
	return f.turn, f.turnErr
}

func (f *fakePractice) End(ctx context.Context, sessionID string) (*domain.Score, error) {
	return f.EndWithReason(ctx, sessionID, domain.EndByUser)
}

func (f *fakePractice) EndWithReason(_ context.Context, _ string, reason domain.EndReason) (*domain.Score, error) {
	f.endReasons = append(f.endReasons, reason)
	return f.score, f.endErr
}

func (f *fakePractice) Active(userID string) (string, bool) {
	id, ok := f.active[userID]
	return id, ok
}

type fakeLedger struct {
	submitted []ledger.DealSubmission
	approved  []string
	deal      *domain.Deal
	ranking   ledger.Ranking
	movement  ledger.Movement
	stats     ledger.Stats
}

func (f *fakeLedger) SubmitDeal(_ context.Context, sub ledger.DealSubmission) (string, error) {
	f.submitted = append(f.submitted, sub)
	f.deal = &domain.Deal{ID: "d1", SubmitterID: sub.SubmitterID, Role: sub.Role, Niche: domain.NicheSolar, Amount: sub.Amount, State: domain.DealPending}
	return "d1", nil
}

func (f *fakeLedger) ApproveDeal(_ context.Context, id, approver string) (int, error) {
	f.approved = append(f.approved, id)
	f.deal.State = domain.DealApproved
	f.deal.ApproverID = approver
	f.deal.Points = 1
	return 1, nil
}

func (f *fakeLedger) RejectDeal(context.Context, string, string, string) error { return nil }

func (f *fakeLedger) GetDeal(_ context.Context, id string) (*domain.Deal, error) {
	if f.deal == nil || f.deal.ID != id {
		return nil, fmt.Errorf("deal %s: %w", id, domain.ErrNotFound)
	}
	return f.deal, nil
}

func (f *fakeLedger) PendingDeals(context.Context) ([]*domain.Deal, error) {
	if f.deal == nil || f.deal.State != domain.DealPending {
		return nil, nil
	}
	return []*domain.Deal{f.deal}, nil
}

func (f *fakeLedger) Rank(context.Context, domain.Window, time.Time) (ledger.Ranking, error) {
	return f.ranking, nil
}

func (f *fakeLedger) Movement(context.Context, domain.Window, string, time.Time) (ledger.Movement, error) {
	return f.movement, nil
}

func (f *fakeLedger) UserStats(context.Context, string) (ledger.Stats, error) { return f.stats, nil }

func (f *fakeLedger) PointTable() ledger.PointTable { return ledger.DefaultPointTable() }

type fakeUsers map[string]*domain.UserProfile

func (f fakeUsers) GetUser(_ context.Context, id string) (*domain.UserProfile, error) {
	u, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) PutUser(_ context.Context, u *domain.UserProfile) error {
	cp := *u
	f[u.ID] = &cp
	return nil
}

type fakePersonalities struct{}

func (fakePersonalities) Get(_ context.Context, id string) (personality.Profile, error) {
	if p, ok := personality.LookupBuiltIn(id); ok {
		return p, nil
	}
	return nil, fmt.Errorf("personality %s: %w", id, domain.ErrNotFound)
}

func (fakePersonalities) ListFor(context.Context, string) ([]personality.Profile, error) {
	return personality.BuiltIns(), nil
}

func (fakePersonalities) Create(_ context.Context, owner string, spec personality.Spec) (*personality.CustomProfile, error) {
	return &personality.CustomProfile{PersonalityID: "c1", OwnerID: owner, DisplayName: spec.Name, About: spec.Description, Dials: spec.Traits, Active: true}, nil
}

func (fakePersonalities) Delete(context.Context, string, string) error { return nil }

var now = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

func newTestBot(p *fakePractice, l *fakeLedger, users fakeUsers) *DiscordBot {
	b := newBot(Config{GuildID: "g1", AdminRoleID: "admins"}, Deps{
		Practice:      p,
		Ledger:        l,
		Personalities: fakePersonalities{},
		Users:         users,
		Log:           zerolog.Nop(),
	})
	b.now = func() time.Time { return now }
	return b
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func numberOpt(name string, value float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionNumber, Value: value}
}

func invoke(userID, sub string, admin bool, opts ...*discordgo.ApplicationCommandInteractionDataOption) invocation {
	_, parsed := ParseOptions(opts)
	return invocation{UserID: userID, DisplayName: "Sam", Admin: admin, Subcommand: sub, Options: parsed}
}

func TestPracticeStart_ShowsOpeningLine(t *testing.T) {
	b := newTestBot(&fakePractice{}, &fakeLedger{}, fakeUsers{})

	embeds, err := b.runPractice(context.Background(), invoke("u1", "start", false, stringOpt("personality", "owl")))
	require.NoError(t, err)
	require.Len(t, embeds, 1)
	assert.Equal(t, "🚪 Knocking on Owl's door", embeds[0].Title)
	assert.Equal(t, "*Who is it?*", embeds[0].Description)
}

func TestPracticeSay_NaturalEndScoresSession(t *testing.T) {
	p := &fakePractice{
		active: map[string]string{"u1": "s1"},
		turn:   &practice.TurnResult{Reply: "I need to go, sorry.", SuggestEnd: true},
		score:  &domain.Score{Value: 80, Grade: "B+"},
	}
	b := newTestBot(p, &fakeLedger{}, fakeUsers{})

	embeds, err := b.runPractice(context.Background(), invoke("u1", "say", false, stringOpt("message", "Can I show you a quote?")))
	require.NoError(t, err)
	require.Len(t, embeds, 2)
	assert.Equal(t, "I need to go, sorry.", embeds[0].Fields[1].Value)
	assert.Equal(t, "📋 Session Score: 80 (B+)", embeds[1].Title)
	assert.Contains(t, embeds[1].Footer.Text, "+2 points")
	assert.Equal(t, []domain.EndReason{domain.EndByNatural}, p.endReasons)
}

func TestPracticeSay_ScoringFailureKeepsReply(t *testing.T) {
	p := &fakePractice{
		active: map[string]string{"u1": "s1"},
		turn:   &practice.TurnResult{Reply: "Maybe later.", SuggestEnd: true},
		endErr: fmt.Errorf("session s1: %w: %w", domain.ErrPartialFailure, domain.ErrGatewayUnavailable),
	}
	b := newTestBot(p, &fakeLedger{}, fakeUsers{})

	embeds, err := b.runPractice(context.Background(), invoke("u1", "say", false, stringOpt("message", "Hi")))
	require.NoError(t, err)
	require.Len(t, embeds, 2)
	assert.Equal(t, "⏳ Score Pending", embeds[1].Title)
}

func TestPracticeSay_WithoutSession(t *testing.T) {
	b := newTestBot(&fakePractice{}, &fakeLedger{}, fakeUsers{})

	_, err := b.runPractice(context.Background(), invoke("u1", "say", false, stringOpt("message", "Hi")))
	require.ErrorIs(t, err, errNoSession)
	title, _ := describeError(err)
	assert.Equal(t, "Session Ended", title)
}

func TestPracticeEnd_ScoresByUser(t *testing.T) {
	p := &fakePractice{active: map[string]string{"u1": "s1"}, score: &domain.Score{Value: 95, Grade: "A"}}
	b := newTestBot(p, &fakeLedger{}, fakeUsers{})

	embeds, err := b.runPractice(context.Background(), invoke("u1", "end", false))
	require.NoError(t, err)
	assert.Equal(t, "+3 points", embeds[0].Footer.Text)
	assert.Equal(t, []domain.EndReason{domain.EndByUser}, p.endReasons)
}

func TestDeal_SubmitThenApprove(t *testing.T) {
	l := &fakeLedger{}
	b := newTestBot(&fakePractice{}, l, fakeUsers{})
	ctx := context.Background()

	embeds, err := b.runDeal(ctx, invoke("u1", "submit", false,
		stringOpt("role", "closer"), numberOpt("amount", 12500.456), stringOpt("niche", "fiber")))
	require.NoError(t, err)
	require.Len(t, l.submitted, 1)
	sub := l.submitted[0]
	assert.Equal(t, domain.RoleCloser, sub.Role)
	assert.Equal(t, domain.NicheFiber, sub.Niche)
	assert.True(t, sub.Amount.Equal(decimal.RequireFromString("12500.46")))
	assert.Equal(t, "📝 Deal Submitted", embeds[0].Title)

	_, err = b.runDeal(ctx, invoke("u1", "pending", false))
	require.ErrorIs(t, err, errNotAdmin)
	embeds, err = b.runDeal(ctx, invoke("admin", "pending", true))
	require.NoError(t, err)
	assert.Equal(t, "🗂️ Pending Deals (1)", embeds[0].Title)
	assert.True(t, strings.HasPrefix(embeds[0].Description, "`d1` <@u1> · Closer · Solar · $12500.46"))

	_, err = b.runDeal(ctx, invoke("u1", "approve", false, stringOpt("id", "d1")))
	require.ErrorIs(t, err, errNotAdmin)
	assert.Empty(t, l.approved)

	embeds, err = b.runDeal(ctx, invoke("admin", "approve", true, stringOpt("id", "d1")))
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, l.approved)
	assert.Equal(t, "✅ Deal Approved · +1 points", embeds[0].Title)
}

func TestRegister_CreatesThenUpdates(t *testing.T) {
	users := fakeUsers{}
	b := newTestBot(&fakePractice{}, &fakeLedger{}, users)
	ctx := context.Background()

	embeds, err := b.runRegister(ctx, invoke("u1", "", false, stringOpt("niche", "solar"), stringOpt("role", "Closer")))
	require.NoError(t, err)
	assert.Equal(t, "👋 Welcome aboard, Sam", embeds[0].Title)
	require.Contains(t, users, "u1")
	assert.Equal(t, "closer", users["u1"].RoleType)

	b.now = func() time.Time { return now.Add(time.Hour) }
	embeds, err = b.runRegister(ctx, invoke("u1", "", false, stringOpt("niche", "landscaping")))
	require.NoError(t, err)
	assert.Equal(t, "✏️ Profile updated", embeds[0].Title)
	assert.Equal(t, domain.NicheLandscaping, users["u1"].Niche)
	assert.Equal(t, "closer", users["u1"].RoleType)
	assert.Equal(t, now, users["u1"].CreatedAt)
	assert.Equal(t, now.Add(time.Hour), users["u1"].UpdatedAt)
}

func TestStats_UnregisteredUser(t *testing.T) {
	b := newTestBot(&fakePractice{}, &fakeLedger{}, fakeUsers{})

	_, err := b.runStats(context.Background(), invoke("ghost", "", false))
	require.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestPersonalityCreate_MapsTraits(t *testing.T) {
	b := newTestBot(&fakePractice{}, &fakeLedger{}, fakeUsers{})
	aggression := &discordgo.ApplicationCommandInteractionDataOption{Name: "aggression", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(9)}

	embeds, err := b.runPersonality(context.Background(), invoke("u1", "create", false,
		stringOpt("name", "Grumpy Gus"), stringOpt("description", "Retired, suspicious of salespeople"), aggression))
	require.NoError(t, err)
	assert.Equal(t, "🎭 Created Grumpy Gus", embeds[0].Title)
	assert.True(t, strings.Contains(embeds[0].Fields[1].Value, "Aggression: high"))
	assert.True(t, strings.Contains(embeds[0].Fields[1].Value, "Patience: medium"))
}

func TestDealAmountOptionIsBounded(t *testing.T) {
	var amount *discordgo.ApplicationCommandOption
	for _, c := range commands {
		if c.Name != "deal" {
			continue
		}
		for _, sub := range c.Options {
			for _, o := range sub.Options {
				if sub.Name == "submit" && o.Name == "amount" {
					amount = o
				}
			}
		}
	}
	require.NotNil(t, amount)
	require.NotNil(t, amount.MinValue)
	assert.Equal(t, float64(0), *amount.MinValue)
	assert.Equal(t, float64(10_000_000), amount.MaxValue)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err     error
		title   string
		message string
	}{
		{fmt.Errorf("session s1: %w", domain.ErrAlreadyActive), "🚪 Session In Progress", "Finish your current session first with `/practice end`."},
		{fmt.Errorf("%w: reply: timeout", domain.ErrGatewayUnavailable), "📵 Partner Unavailable", ""},
		{fmt.Errorf("session s1: %w: %w", domain.ErrPartialFailure, domain.ErrGatewayUnavailable), "⏳ Score Pending", ""},
		{fmt.Errorf("submit: %w", domain.Invalid("amount must not be negative")), "Invalid Input", "Amount must not be negative"},
		{fmt.Errorf("session s1: %w", &domain.RateLimitError{Scope: domain.RateLimitUser, RetryAfter: 11600 * time.Millisecond}), "🐢 Slow Down", "You're sending messages too fast. Try again in 12s."},
		{&domain.RateLimitError{Scope: domain.RateLimitGlobal, RetryAfter: 200 * time.Millisecond}, "🐢 Slow Down", "The homeowners are swamped right now. Try again in 1s."},
		{fmt.Errorf("boom"), "Something Went Wrong", ""},
	}
	for _, tt := range tests {
		title, message := describeError(tt.err)
		assert.Equal(t, tt.title, title, tt.err.Error())
		if tt.message != "" {
			assert.Equal(t, tt.message, message)
		}
	}
}

func TestParseOptions_Subcommand(t *testing.T) {
	sub, opts := ParseOptions([]*discordgo.ApplicationCommandInteractionDataOption{{
		Name: "start",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			stringOpt("personality", "  owl "),
			{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "u9"},
		},
	}})
	assert.Equal(t, "start", sub)
	assert.Equal(t, "owl", opts.String("personality"))
	assert.Equal(t, "u9", opts.UserID("user"))
	assert.Equal(t, "", opts.String("missing"))
	assert.Equal(t, 5, opts.Int("missing", 5))
}
