package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hunterjsb/doorknock/internal/domain"
)

const sessionColumns = `id, user_id, personality_id, state, transcript, started_at, last_activity_at,
	ended_at, end_reason, score, scoring_failed, points`

// PutSession inserts or replaces a practice session. Terminal rows are never
// overwritten: writing to a session that is already terminal is an error.
func (s *Store) PutSession(ctx context.Context, sess *domain.PracticeSession) error {
	transcript, err := json.Marshal(sess.Transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	var score sql.NullString
	var scoreValue sql.NullInt64
	if sess.Score != nil {
		raw, err := json.Marshal(sess.Score)
		if err != nil {
			return fmt.Errorf("failed to encode score: %w", err)
		}
		score = sql.NullString{String: string(raw), Valid: true}
		scoreValue = sql.NullInt64{Int64: int64(sess.Score.Value), Valid: true}
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`, score_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			transcript = excluded.transcript,
			last_activity_at = excluded.last_activity_at,
			ended_at = excluded.ended_at,
			end_reason = excluded.end_reason,
			score = excluded.score,
			score_value = excluded.score_value,
			scoring_failed = excluded.scoring_failed,
			points = excluded.points
		WHERE sessions.state <> 'terminal'`,
		sess.ID, sess.UserID, sess.PersonalityID, string(sess.State), string(transcript),
		formatTime(sess.StartedAt), formatTime(sess.LastActivityAt), nullTime(sess.EndedAt),
		string(sess.EndReason), score, boolInt(sess.ScoringFailed), sess.Points, scoreValue,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, domain.ErrSessionEnded)
	}
	return nil
}

// GetSession loads a session. Unknown ids return domain.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.PracticeSession, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if isNoRows(err) {
		return nil, notFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return sess, nil
}

// DeleteSession removes a session row.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("session", id)
	}
	return nil
}

// ListSessionsByState returns all sessions in any of the given states, oldest first.
// Rows that cannot be decoded are skipped and reported.
func (s *Store) ListSessionsByState(ctx context.Context, states ...domain.SessionState) ([]*domain.PracticeSession, []*domain.DataIntegrityError, error) {
	if len(states) == 0 {
		return nil, nil, nil
	}
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE state IN (?` +
		strings.Repeat(", ?", len(states)-1) + `) ORDER BY started_at, id`
	return s.listSessions(ctx, query, args...)
}

// ListSessionsByUser returns the user's sessions, oldest first.
func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]*domain.PracticeSession, []*domain.DataIntegrityError, error) {
	return s.listSessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY started_at, id`, userID)
}

func (s *Store) listSessions(ctx context.Context, query string, args ...any) ([]*domain.PracticeSession, []*domain.DataIntegrityError, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		out     []*domain.PracticeSession
		skipped []*domain.DataIntegrityError
	)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			skipped = append(skipped, integrityErr("sessions", sess, err))
			continue
		}
		out = append(out, sess)
	}
	return out, skipped, rows.Err()
}

// scanSession always returns a session carrying at least the id when the row
// itself could be read, so decode failures can name the offending key.
func scanSession(sc scanner) (*domain.PracticeSession, error) {
	var (
		sess                  domain.PracticeSession
		state, transcript     string
		started, lastActivity string
		ended, score          sql.NullString
		endReason             string
		scoringFailed         int
	)
	err := sc.Scan(&sess.ID, &sess.UserID, &sess.PersonalityID, &state, &transcript,
		&started, &lastActivity, &ended, &endReason, &score, &scoringFailed, &sess.Points)
	if err != nil {
		return nil, err
	}

	sess.State = domain.SessionState(state)
	switch sess.State {
	case domain.SessionActive, domain.SessionScoring, domain.SessionTerminal:
	default:
		return &sess, fmt.Errorf("unknown state %q", state)
	}
	if err := json.Unmarshal([]byte(transcript), &sess.Transcript); err != nil {
		return &sess, fmt.Errorf("transcript: %w", err)
	}
	if sess.StartedAt, err = parseTime(started); err != nil {
		return &sess, fmt.Errorf("started_at: %w", err)
	}
	if sess.LastActivityAt, err = parseTime(lastActivity); err != nil {
		return &sess, fmt.Errorf("last_activity_at: %w", err)
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return &sess, fmt.Errorf("ended_at: %w", err)
		}
		sess.EndedAt = &t
	}
	if score.Valid {
		var parsed domain.Score
		if err := json.Unmarshal([]byte(score.String), &parsed); err != nil {
			return &sess, fmt.Errorf("score: %w", err)
		}
		sess.Score = &parsed
	}
	sess.EndReason = domain.EndReason(endReason)
	sess.ScoringFailed = scoringFailed != 0
	return &sess, nil
}

func integrityErr(table string, sess *domain.PracticeSession, err error) *domain.DataIntegrityError {
	key := "?"
	if sess != nil {
		key = sess.ID
	}
	return &domain.DataIntegrityError{Table: table, Key: key, Reason: err.Error()}
}
