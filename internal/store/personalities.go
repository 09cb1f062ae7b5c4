package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hunterjsb/doorknock/internal/personality"
)

const personalityColumns = `id, owner_id, name, description, behavior, starters, traits, rubric, active, created_at, updated_at`

var _ personality.Store = (*Store)(nil)

// PutPersonality inserts or replaces a custom personality.
func (s *Store) PutPersonality(ctx context.Context, p *personality.CustomProfile) error {
	starters, err := json.Marshal(p.Starters)
	if err != nil {
		return fmt.Errorf("failed to encode starters: %w", err)
	}
	traits, err := json.Marshal(p.Dials)
	if err != nil {
		return fmt.Errorf("failed to encode traits: %w", err)
	}
	rubric, err := json.Marshal(p.Scoring)
	if err != nil {
		return fmt.Errorf("failed to encode rubric: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO custom_personalities (`+personalityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			behavior = excluded.behavior,
			starters = excluded.starters,
			traits = excluded.traits,
			rubric = excluded.rubric,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		p.PersonalityID, p.OwnerID, p.DisplayName, p.About, p.Behavior,
		string(starters), string(traits), string(rubric), boolInt(p.Active),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save personality %s: %w", p.PersonalityID, err)
	}
	return nil
}

// GetPersonality loads a custom personality, active or not.
func (s *Store) GetPersonality(ctx context.Context, id string) (*personality.CustomProfile, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+personalityColumns+` FROM custom_personalities WHERE id = ?`, id)
	p, err := scanPersonality(row)
	if isNoRows(err) {
		return nil, notFound("personality", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load personality %s: %w", id, err)
	}
	return p, nil
}

// ListPersonalities returns every custom personality owned by ownerID, inactive ones included.
func (s *Store) ListPersonalities(ctx context.Context, ownerID string) ([]*personality.CustomProfile, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+personalityColumns+` FROM custom_personalities WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list personalities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*personality.CustomProfile
	for rows.Next() {
		p, err := scanPersonality(rows)
		if err != nil {
			s.log.Warn().Err(err).Str("owner", ownerID).Msg("Skipping unreadable personality row")
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPersonality(sc scanner) (*personality.CustomProfile, error) {
	var (
		p                        personality.CustomProfile
		starters, traits, rubric string
		active                   int
		created, updated         string
	)
	if err := sc.Scan(&p.PersonalityID, &p.OwnerID, &p.DisplayName, &p.About, &p.Behavior,
		&starters, &traits, &rubric, &active, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(starters), &p.Starters); err != nil {
		return nil, fmt.Errorf("starters: %w", err)
	}
	if err := json.Unmarshal([]byte(traits), &p.Dials); err != nil {
		return nil, fmt.Errorf("traits: %w", err)
	}
	if err := json.Unmarshal([]byte(rubric), &p.Scoring); err != nil {
		return nil, fmt.Errorf("rubric: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	p.Active = active != 0
	return &p, nil
}
