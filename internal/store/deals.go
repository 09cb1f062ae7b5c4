package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hunterjsb/doorknock/internal/domain"
)

const dealColumns = `id, submitter_id, role, niche, amount, description, state, points,
	point_table_version, approver_id, decision_note, submitted_at, decided_at`

// PutDeal inserts a new pending deal.
func (s *Store) PutDeal(ctx context.Context, d *domain.Deal) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SubmitterID, string(d.Role), string(d.Niche), d.Amount.String(), d.Description,
		string(d.State), d.Points, d.PointTableVersion, d.ApproverID, d.DecisionNote,
		formatTime(d.SubmittedAt), nullTime(d.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save deal %s: %w", d.ID, err)
	}
	return nil
}

// DecideDeal moves a pending deal to its decided state in a single
// conditional update. Deals that were already decided return
// domain.ErrDealDecided; unknown ids return domain.ErrNotFound.
func (s *Store) DecideDeal(ctx context.Context, d *domain.Deal) error {
	if d.State == domain.DealPending {
		return domain.Invalid("deal %s: decision must approve or reject", d.ID)
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE deals SET state = ?, points = ?, point_table_version = ?, approver_id = ?,
			decision_note = ?, decided_at = ?
		WHERE id = ? AND state = 'pending'`,
		string(d.State), d.Points, d.PointTableVersion, d.ApproverID, d.DecisionNote,
		nullTime(d.DecidedAt), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to decide deal %s: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to decide deal %s: %w", d.ID, err)
	}
	if n == 1 {
		return nil
	}

	var state string
	err = s.conn.QueryRowContext(ctx, `SELECT state FROM deals WHERE id = ?`, d.ID).Scan(&state)
	if isNoRows(err) {
		return notFound("deal", d.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load deal %s: %w", d.ID, err)
	}
	return fmt.Errorf("deal %s is %s: %w", d.ID, state, domain.ErrDealDecided)
}

// GetDeal loads a deal. Unknown ids return domain.ErrNotFound.
func (s *Store) GetDeal(ctx context.Context, id string) (*domain.Deal, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
	d, err := scanDeal(row)
	if isNoRows(err) {
		return nil, notFound("deal", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deal %s: %w", id, err)
	}
	return d, nil
}

// ListDealsByUser returns the user's deals, newest first.
func (s *Store) ListDealsByUser(ctx context.Context, userID string) ([]*domain.Deal, []*domain.DataIntegrityError, error) {
	return s.listDeals(ctx, `SELECT `+dealColumns+` FROM deals WHERE submitter_id = ? ORDER BY submitted_at DESC, id`, userID)
}

// ListDealsByState returns deals in the given state, oldest first.
func (s *Store) ListDealsByState(ctx context.Context, state domain.DealState) ([]*domain.Deal, []*domain.DataIntegrityError, error) {
	return s.listDeals(ctx, `SELECT `+dealColumns+` FROM deals WHERE state = ? ORDER BY submitted_at, id`, string(state))
}

func (s *Store) listDeals(ctx context.Context, query string, args ...any) ([]*domain.Deal, []*domain.DataIntegrityError, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		out     []*domain.Deal
		skipped []*domain.DataIntegrityError
	)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			key := "?"
			if d != nil {
				key = d.ID
			}
			skipped = append(skipped, &domain.DataIntegrityError{Table: "deals", Key: key, Reason: err.Error()})
			continue
		}
		out = append(out, d)
	}
	return out, skipped, rows.Err()
}

func scanDeal(sc scanner) (*domain.Deal, error) {
	var (
		d                  domain.Deal
		role, niche, state string
		amount, submitted  string
		decided            sql.NullString
	)
	err := sc.Scan(&d.ID, &d.SubmitterID, &role, &niche, &amount, &d.Description, &state, &d.Points,
		&d.PointTableVersion, &d.ApproverID, &d.DecisionNote, &submitted, &decided)
	if err != nil {
		return nil, err
	}

	d.Role = domain.DealRole(role)
	d.Niche = domain.Niche(niche)
	d.State = domain.DealState(state)
	switch d.State {
	case domain.DealPending, domain.DealApproved, domain.DealRejected:
	default:
		return &d, fmt.Errorf("unknown state %q", state)
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return &d, fmt.Errorf("amount: %w", err)
	}
	if d.SubmittedAt, err = parseTime(submitted); err != nil {
		return &d, fmt.Errorf("submitted_at: %w", err)
	}
	if decided.Valid {
		t, err := parseTime(decided.String)
		if err != nil {
			return &d, fmt.Errorf("decided_at: %w", err)
		}
		d.DecidedAt = &t
	}
	return &d, nil
}
