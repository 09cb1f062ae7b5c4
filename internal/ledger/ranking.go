package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/store"
)

// Ranking is a computed leaderboard. Skipped lists the stored rows that were
// left out because they could not be interpreted.
type Ranking struct {
	Window  domain.Window
	AsOf    time.Time
	Entries []domain.LeaderboardEntry
	Skipped []*domain.DataIntegrityError
}

// Entry returns the user's row, if ranked.
func (r Ranking) Entry(userID string) (domain.LeaderboardEntry, bool) {
	for _, e := range r.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return domain.LeaderboardEntry{}, false
}

// Rank computes the leaderboard of window ending at asOf. Ties on points go
// to the user who reached the total first, then to the smaller user id.
func (l *Ledger) Rank(ctx context.Context, window domain.Window, asOf time.Time) (Ranking, error) {
	from, to := window.Bounds(asOf)

	var (
		deals, sessions               []domain.PointEvent
		skippedDeals, skippedSessions []*domain.DataIntegrityError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		deals, skippedDeals, err = l.store.QueryByUserAndWindow(gctx, store.DealEvents, "", from, to)
		return err
	})
	g.Go(func() error {
		var err error
		sessions, skippedSessions, err = l.store.QueryByUserAndWindow(gctx, store.SessionEvents, "", from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return Ranking{}, fmt.Errorf("ranking %s: %w", window, err)
	}

	skipped := append(skippedDeals, skippedSessions...)
	l.reportSkipped(skipped)
	return Ranking{
		Window:  window,
		AsOf:    to,
		Entries: Aggregate(append(deals, sessions...)),
		Skipped: skipped,
	}, nil
}

func (l *Ledger) reportSkipped(skipped []*domain.DataIntegrityError) {
	for _, s := range skipped {
		l.metrics.IntegritySkip(s.Table)
		l.log.Warn().Str("table", s.Table).Str("key", s.Key).Str("reason", s.Reason).Msg("Skipping malformed row")
	}
}

// Aggregate sums events per user and orders the result. Events worth zero
// points do not place a user on the board.
func Aggregate(events []domain.PointEvent) []domain.LeaderboardEntry {
	byUser := make(map[string]*domain.LeaderboardEntry)
	for _, ev := range events {
		if ev.Points <= 0 {
			continue
		}
		e, ok := byUser[ev.UserID]
		if !ok {
			e = &domain.LeaderboardEntry{UserID: ev.UserID}
			byUser[ev.UserID] = e
		}
		e.Points += ev.Points
		if ev.At.After(e.ReachedAt) {
			e.ReachedAt = ev.At
		}
	}

	out := make([]domain.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.ReachedAt.Equal(b.ReachedAt) {
			return a.ReachedAt.Before(b.ReachedAt)
		}
		return a.UserID < b.UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// TakeSnapshot persists the ranking of window at asOf. Snapshots are never
// recomputed: a second capture of the same instant returns domain.ErrSnapshotExists.
func (l *Ledger) TakeSnapshot(ctx context.Context, window domain.Window, asOf time.Time) (*domain.Snapshot, error) {
	ranking, err := l.Rank(ctx, window, asOf)
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{
		ID:      uuid.NewString(),
		Window:  window,
		AsOf:    ranking.AsOf,
		TakenAt: l.now().UTC(),
		Entries: ranking.Entries,
	}
	if err := l.store.PutSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	l.log.Info().Str("snapshot", snap.ID).Str("window", string(window)).Time("as_of", snap.AsOf).
		Int("entries", len(snap.Entries)).Msg("Leaderboard snapshot taken")
	return snap, nil
}

// Movement compares a user's current rank with the latest snapshot.
type Movement struct {
	UserID   string
	Current  int
	Previous int
	// Baseline is the as-of time of the snapshot compared against, nil if none exists.
	Baseline *time.Time
}

// Delta is positive when the user moved up. It is zero unless the user is
// ranked in both the snapshot and now.
func (m Movement) Delta() int {
	if m.Current == 0 || m.Previous == 0 {
		return 0
	}
	return m.Previous - m.Current
}

func (m Movement) String() string {
	switch d := m.Delta(); {
	case m.Current == 0:
		return "not ranked"
	case m.Baseline == nil || m.Previous == 0:
		return "new on the board"
	case d > 0:
		return fmt.Sprintf("moved up %d", d)
	case d < 0:
		return fmt.Sprintf("moved down %d", -d)
	default:
		return "no change"
	}
}

// Movement reports how the user's rank in window changed since the latest
// snapshot taken before asOf.
func (l *Ledger) Movement(ctx context.Context, window domain.Window, userID string, asOf time.Time) (Movement, error) {
	ranking, err := l.Rank(ctx, window, asOf)
	if err != nil {
		return Movement{}, err
	}
	m := Movement{UserID: userID}
	if e, ok := ranking.Entry(userID); ok {
		m.Current = e.Rank
	}

	snap, err := l.store.LatestSnapshotBefore(ctx, window, asOf)
	if errors.Is(err, domain.ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return Movement{}, err
	}
	baseline := snap.AsOf
	m.Baseline = &baseline
	m.Previous = snap.RankOf(userID)
	return m, nil
}
