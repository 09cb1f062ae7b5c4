package store

import (
	"context"
	"fmt"

	"github.com/hunterjsb/doorknock/internal/domain"
)

const userColumns = `id, display_name, niche, experience_level, role_type, created_at, updated_at, disabled`

// PutUser inserts or replaces a user profile.
func (s *Store) PutUser(ctx context.Context, u *domain.UserProfile) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			niche = excluded.niche,
			experience_level = excluded.experience_level,
			role_type = excluded.role_type,
			updated_at = excluded.updated_at,
			disabled = excluded.disabled`,
		u.ID, u.DisplayName, string(u.Niche), u.ExperienceLevel, u.RoleType,
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt), boolInt(u.Disabled),
	)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser loads a user profile. Unknown ids return domain.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserProfile, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if isNoRows(err) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return u, nil
}

// ListUsers returns every user, disabled ones included.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.UserProfile, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.UserProfile
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(sc scanner) (*domain.UserProfile, error) {
	var (
		u                domain.UserProfile
		niche            string
		created, updated string
		disabled         int
	)
	if err := sc.Scan(&u.ID, &u.DisplayName, &niche, &u.ExperienceLevel, &u.RoleType, &created, &updated, &disabled); err != nil {
		return nil, err
	}
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	u.Niche = domain.Niche(niche)
	u.Disabled = disabled != 0
	return &u, nil
}
