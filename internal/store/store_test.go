package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/personality"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db"), Log: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestOpen_CreatesDirectoryAndMigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "bot.db")
	s, err := Open(Config{Path: path, Log: zerolog.Nop()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestUsers_RoundTripAndNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &domain.UserProfile{ID: "u1", DisplayName: "Sam", Niche: domain.NicheSolar, ExperienceLevel: "new", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.PutUser(ctx, u))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	u.Niche = domain.NicheFiber
	u.Disabled = true
	require.NoError(t, s.PutUser(ctx, u))
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.NicheFiber, got.Niche)
	assert.True(t, got.Disabled)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testSession(id string) *domain.PracticeSession {
	return &domain.PracticeSession{
		ID:            id,
		UserID:        "u1",
		PersonalityID: "owl",
		Transcript: domain.Transcript{
			{Speaker: domain.SpeakerPartner, Text: "Hello?", At: base},
			{Speaker: domain.SpeakerUser, Text: "Hi, I'm with SunCo", At: base.Add(time.Second)},
		},
		State:          domain.SessionActive,
		StartedAt:      base,
		LastActivityAt: base.Add(time.Second),
	}
}

func TestSessions_TerminalRowsAreImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s1")
	require.NoError(t, s.PutSession(ctx, sess))

	ended := base.Add(time.Minute)
	score := domain.NewScore([]domain.CategoryScore{{Key: "rapport", Label: "rapport", Score: 80, Weight: 1}}, "ok")
	sess.State = domain.SessionTerminal
	sess.EndedAt = &ended
	sess.EndReason = domain.EndByUser
	sess.Score = &score
	sess.Points = 2
	require.NoError(t, s.PutSession(ctx, sess))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	sess.Points = 99
	err = s.PutSession(ctx, sess)
	assert.ErrorIs(t, err, domain.ErrSessionEnded)

	got, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Points)
}

func TestSessions_ListByStateSkipsCorruptRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, testSession("good")))
	_, err := s.conn.ExecContext(ctx, `INSERT INTO sessions (id, user_id, personality_id, state, transcript, started_at, last_activity_at)
		VALUES ('bad', 'u2', 'owl', 'active', 'not json', ?, ?)`, formatTime(base), formatTime(base))
	require.NoError(t, err)

	active, skipped, err := s.ListSessionsByState(ctx, domain.SessionActive, domain.SessionScoring)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "good", active[0].ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, "bad", skipped[0].Key)

	byUser, _, err := s.ListSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	require.NoError(t, s.DeleteSession(ctx, "good"))
	assert.ErrorIs(t, s.DeleteSession(ctx, "good"), domain.ErrNotFound)
}

func testDeal(submitter string) *domain.Deal {
	return &domain.Deal{
		ID:          uuid.NewString(),
		SubmitterID: submitter,
		Role:        domain.RoleSelfGenerated,
		Niche:       domain.NicheLandscaping,
		Amount:      decimal.RequireFromString("125000.50"),
		State:       domain.DealPending,
		SubmittedAt: base,
	}
}

func TestDeals_DecideOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeal("u1")
	require.NoError(t, s.PutDeal(ctx, d))

	decided := base.Add(time.Hour)
	approve := *d
	approve.State = domain.DealApproved
	approve.Points = 3
	approve.ApproverID = "admin"
	approve.DecidedAt = &decided
	require.NoError(t, s.DecideDeal(ctx, &approve))

	reject := *d
	reject.State = domain.DealRejected
	reject.DecidedAt = &decided
	assert.ErrorIs(t, s.DecideDeal(ctx, &reject), domain.ErrDealDecided)

	got, err := s.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DealApproved, got.State)
	assert.Equal(t, 3, got.Points)
	assert.True(t, d.Amount.Equal(got.Amount))

	missing := approve
	missing.ID = "nope"
	assert.ErrorIs(t, s.DecideDeal(ctx, &missing), domain.ErrNotFound)

	pending := *d
	assert.ErrorIs(t, s.DecideDeal(ctx, &pending), domain.ErrInvalidInput)
}

func TestDeals_ListByUserAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutDeal(ctx, testDeal("u1")))
	require.NoError(t, s.PutDeal(ctx, testDeal("u1")))
	require.NoError(t, s.PutDeal(ctx, testDeal("u2")))

	mine, skipped, err := s.ListDealsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Len(t, mine, 2)

	pending, _, err := s.ListDealsByState(ctx, domain.DealPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestPersonalities_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &personality.CustomProfile{
		PersonalityID: "p1",
		OwnerID:       "u1",
		DisplayName:   "Grumpy Gus",
		About:         "Hates solicitors",
		Starters:      []string{"What now?"},
		Dials:         personality.Traits{Aggression: 0.9},
		Scoring:       personality.Rubric{{Key: "rapport", Label: "rapport building", Weight: 1}},
		Active:        true,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	require.NoError(t, s.PutPersonality(ctx, p))

	got, err := s.GetPersonality(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	p.Active = false
	require.NoError(t, s.PutPersonality(ctx, p))
	list, err := s.ListPersonalities(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)

	_, err = s.GetPersonality(ctx, "p2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshots_UniquePerWindowAndAsOf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &domain.Snapshot{
		ID: uuid.NewString(), Window: domain.Weekly, AsOf: base, TakenAt: base,
		Entries: []domain.LeaderboardEntry{{UserID: "u1", Points: 4, Rank: 1, ReachedAt: base}},
	}
	require.NoError(t, s.PutSnapshot(ctx, first))

	dup := *first
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.PutSnapshot(ctx, &dup), domain.ErrSnapshotExists)

	later := &domain.Snapshot{ID: uuid.NewString(), Window: domain.Weekly, AsOf: base.Add(24 * time.Hour), TakenAt: base}
	require.NoError(t, s.PutSnapshot(ctx, later))

	got, err := s.LatestSnapshotBefore(ctx, domain.Weekly, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1, got.RankOf("u1"))

	got, err = s.GetSnapshot(ctx, later.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Entries)

	_, err = s.LatestSnapshotBefore(ctx, domain.Monthly, base.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventQueries_UseWindowIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for table, index := range map[EventTable]string{
		DealEvents:    "idx_deals_state_decided",
		SessionEvents: "idx_sessions_state_ended",
	} {
		query, _, err := eventQuery(table, false)
		require.NoError(t, err)

		rows, err := s.conn.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query, formatTime(base), formatTime(base))
		require.NoError(t, err)
		var plan []string
		for rows.Next() {
			var id, parent, unused int
			var detail string
			require.NoError(t, rows.Scan(&id, &parent, &unused, &detail))
			plan = append(plan, detail)
		}
		require.NoError(t, rows.Err())
		require.NoError(t, rows.Close())
		assert.Contains(t, strings.Join(plan, "\n"), index, table)
	}
}

func TestQueryByUserAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inWindow := base.Add(-time.Hour)
	outside := base.AddDate(0, 0, -30)
	for _, tc := range []struct {
		user   string
		points int
		at     time.Time
	}{
		{"u1", 2, inWindow},
		{"u1", 5, outside},
		{"u2", 1, inWindow},
	} {
		d := testDeal(tc.user)
		require.NoError(t, s.PutDeal(ctx, d))
		at := tc.at
		d.State = domain.DealApproved
		d.Points = tc.points
		d.DecidedAt = &at
		require.NoError(t, s.DecideDeal(ctx, d))
	}
	require.NoError(t, s.PutDeal(ctx, testDeal("u1")))

	_, err := s.conn.ExecContext(ctx, `INSERT INTO deals (id, submitter_id, role, niche, state, points, submitted_at, decided_at)
		VALUES ('neg', 'u1', 'closer', 'solar', 'approved', -4, ?, ?),
			('ts', 'u1', 'closer', 'solar', 'approved', 1, ?, '2026-10-14T09:99:00Z'),
			('old', 'u1', 'closer', 'solar', 'approved', 1, ?, 'yesterday')`,
		formatTime(base), formatTime(base), formatTime(base), formatTime(base))
	require.NoError(t, err)

	from, to := domain.Weekly.Bounds(base)
	events, skipped, err := s.QueryByUserAndWindow(ctx, DealEvents, "u1", from, to)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Points)
	assert.Equal(t, domain.SourceDeal, events[0].Source)
	require.Len(t, skipped, 2)
	assert.ElementsMatch(t, []string{"neg", "ts"}, []string{skipped[0].Key, skipped[1].Key})

	all, _, err := s.QueryByUserAndWindow(ctx, DealEvents, "", from, to)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sess := testSession("scored")
	require.NoError(t, s.PutSession(ctx, sess))
	ended := inWindow
	score := domain.NewScore(nil, "")
	sess.State = domain.SessionTerminal
	sess.EndedAt = &ended
	sess.Score = &score
	sess.Points = 1
	require.NoError(t, s.PutSession(ctx, sess))

	sessions, skipped, err := s.QueryByUserAndWindow(ctx, SessionEvents, "u1", from, to)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, sessions, 1)
	assert.Equal(t, "scored", sessions[0].SourceID)

	_, _, err = s.QueryByUserAndWindow(ctx, EventTable("bogus"), "", from, to)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
