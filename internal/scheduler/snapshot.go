package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hunterjsb/doorknock/internal/domain"
)

// Snapshotter captures leaderboard snapshots. *ledger.Ledger satisfies it.
type Snapshotter interface {
	TakeSnapshot(ctx context.Context, window domain.Window, asOf time.Time) (*domain.Snapshot, error)
}

// SnapshotJob captures the ranking of one window whenever it runs.
type SnapshotJob struct {
	ledger  Snapshotter
	window  domain.Window
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewSnapshotJob creates a job for window. Monthly jobs are meant to run
// daily and only capture on the last day of the month.
func NewSnapshotJob(ledger Snapshotter, window domain.Window, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		ledger:  ledger,
		window:  window,
		timeout: time.Minute,
		log:     log.With().Str("job", "snapshot_"+string(window)).Logger(),
		now:     time.Now,
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "snapshot_" + string(j.window)
}

// Run takes the snapshot. A snapshot already taken for the same instant is not an error.
func (j *SnapshotJob) Run() error {
	asOf := j.now().UTC().Truncate(time.Second)
	if j.window == domain.Monthly && !lastDayOfMonth(asOf) {
		j.log.Debug().Time("as_of", asOf).Msg("Not the last day of the month, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	snap, err := j.ledger.TakeSnapshot(ctx, j.window, asOf)
	if errors.Is(err, domain.ErrSnapshotExists) {
		j.log.Info().Time("as_of", asOf).Msg("Snapshot already taken")
		return nil
	}
	if err != nil {
		return err
	}
	j.log.Info().Str("snapshot", snap.ID).Int("entries", len(snap.Entries)).Msg("Snapshot captured")
	return nil
}

func lastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Month() != t.Month()
}
