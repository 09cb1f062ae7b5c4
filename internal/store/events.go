package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hunterjsb/doorknock/internal/domain"
)

// EventTable names a table that produces ledger point events.
type EventTable string

const (
	DealEvents    EventTable = "deals"
	SessionEvents EventTable = "sessions"
)

// QueryByUserAndWindow returns the point events of table in the inclusive
// range [from, to]. An empty userID means every user. The window is matched
// on the stored text, which sorts like the time it encodes; rows inside it
// whose points or timestamps cannot be trusted are skipped and reported,
// never fatal.
func (s *Store) QueryByUserAndWindow(ctx context.Context, table EventTable, userID string, from, to time.Time) ([]domain.PointEvent, []*domain.DataIntegrityError, error) {
	query, source, err := eventQuery(table, userID != "")
	if err != nil {
		return nil, nil, err
	}
	args := []any{formatTime(from), formatTime(to)}
	if userID != "" {
		args = append(args, userID)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s events: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		events  []domain.PointEvent
		skipped []*domain.DataIntegrityError
	)
	skip := func(key, reason string) {
		skipped = append(skipped, &domain.DataIntegrityError{Table: string(table), Key: key, Reason: reason})
	}
	for rows.Next() {
		var (
			id, user string
			points   sql.NullInt64
			at       sql.NullString
		)
		if err := rows.Scan(&id, &user, &points, &at); err != nil {
			skip("?", err.Error())
			continue
		}
		if !points.Valid || points.Int64 < 0 {
			skip(id, "missing or negative points")
			continue
		}
		if !at.Valid {
			skip(id, "missing timestamp")
			continue
		}
		ts, err := parseTime(at.String)
		if err != nil {
			skip(id, "unparseable timestamp "+at.String)
			continue
		}
		events = append(events, domain.PointEvent{
			UserID:   user,
			Points:   int(points.Int64),
			At:       ts,
			Source:   source,
			SourceID: id,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read %s events: %w", table, err)
	}
	return events, skipped, nil
}

// eventQuery selects id, owner, points and timestamp of the rows that earn
// points. Its parameters are the window bounds, then the owner when byUser.
func eventQuery(table EventTable, byUser bool) (string, domain.PointSource, error) {
	var query string
	var source domain.PointSource
	switch table {
	case DealEvents:
		source = domain.SourceDeal
		query = `SELECT id, submitter_id, points, decided_at FROM deals
			WHERE state = 'approved' AND decided_at BETWEEN ? AND ?`
		if byUser {
			query += ` AND submitter_id = ?`
		}
	case SessionEvents:
		source = domain.SourceSession
		query = `SELECT id, user_id, points, ended_at FROM sessions
			WHERE state = 'terminal' AND ended_at BETWEEN ? AND ? AND score_value IS NOT NULL`
		if byUser {
			query += ` AND user_id = ?`
		}
	default:
		return "", "", domain.Invalid("unknown event table %q", table)
	}
	return query, source, nil
}
