package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hunterjsb/doorknock/internal/domain"
)

const snapshotColumns = `id, time_window, as_of, taken_at, entries`

// PutSnapshot stores an immutable snapshot. A second snapshot for the same
// window and as-of instant returns domain.ErrSnapshotExists.
func (s *Store) PutSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	entries, err := json.Marshal(snap.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot entries: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO leaderboard_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Window), formatTime(snap.AsOf), formatTime(snap.TakenAt), string(entries),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("snapshot %s: %w", snap, domain.ErrSnapshotExists)
		}
		return fmt.Errorf("failed to save snapshot %s: %w", snap, err)
	}
	return nil
}

// GetSnapshot loads a snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM leaderboard_snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if isNoRows(err) {
		return nil, notFound("snapshot", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}
	return snap, nil
}

// LatestSnapshotBefore returns the most recent snapshot of window taken
// strictly before asOf, or domain.ErrNotFound if there is none.
func (s *Store) LatestSnapshotBefore(ctx context.Context, window domain.Window, asOf time.Time) (*domain.Snapshot, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM leaderboard_snapshots
		WHERE time_window = ? AND as_of < ?
		ORDER BY as_of DESC LIMIT 1`,
		string(window), formatTime(asOf),
	)
	snap, err := scanSnapshot(row)
	if isNoRows(err) {
		return nil, notFound("snapshot", string(window))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s snapshot: %w", window, err)
	}
	return snap, nil
}

func scanSnapshot(sc scanner) (*domain.Snapshot, error) {
	var (
		snap                         domain.Snapshot
		window, asOf, taken, entries string
	)
	if err := sc.Scan(&snap.ID, &window, &asOf, &taken, &entries); err != nil {
		return nil, err
	}
	snap.Window = domain.Window(window)
	var err error
	if snap.AsOf, err = parseTime(asOf); err != nil {
		return nil, fmt.Errorf("as_of: %w", err)
	}
	if snap.TakenAt, err = parseTime(taken); err != nil {
		return nil, fmt.Errorf("taken_at: %w", err)
	}
	if err := json.Unmarshal([]byte(entries), &snap.Entries); err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	return &snap, nil
}
