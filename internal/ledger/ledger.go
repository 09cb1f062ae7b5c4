// Package ledger turns approved deals and scored practice sessions into
// points, rankings and immutable leaderboard snapshots.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/metrics"
	"github.com/hunterjsb/doorknock/internal/store"
)

// Store is the persistence the ledger needs. *store.Store satisfies it.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.UserProfile, error)
	PutDeal(ctx context.Context, d *domain.Deal) error
	GetDeal(ctx context.Context, id string) (*domain.Deal, error)
	DecideDeal(ctx context.Context, d *domain.Deal) error
	ListDealsByUser(ctx context.Context, userID string) ([]*domain.Deal, []*domain.DataIntegrityError, error)
	ListDealsByState(ctx context.Context, state domain.DealState) ([]*domain.Deal, []*domain.DataIntegrityError, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*domain.PracticeSession, []*domain.DataIntegrityError, error)
	QueryByUserAndWindow(ctx context.Context, table store.EventTable, userID string, from, to time.Time) ([]domain.PointEvent, []*domain.DataIntegrityError, error)
	PutSnapshot(ctx context.Context, snap *domain.Snapshot) error
	LatestSnapshotBefore(ctx context.Context, window domain.Window, asOf time.Time) (*domain.Snapshot, error)
}

var _ Store = (*store.Store)(nil)

// Ledger records deals and computes rankings.
type Ledger struct {
	store   Store
	table   PointTable
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a Ledger scoring with table.
func New(s Store, table PointTable, log zerolog.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   s,
		table:   table,
		log:     log.With().Str("component", "ledger").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// PointTable returns the table the ledger awards points with.
func (l *Ledger) PointTable() PointTable { return l.table }

// DealSubmission is a user's claim of a closed deal.
type DealSubmission struct {
	SubmitterID string
	Role        domain.DealRole
	// Empty means the submitter's registered niche.
	Niche       domain.Niche
	Amount      decimal.Decimal
	Description string
}

const maxDescriptionLength = 500

// MaxDealAmount is the largest contract value a deal may claim.
var MaxDealAmount = decimal.NewFromInt(10_000_000)

// SubmitDeal records a pending deal and returns its id.
func (l *Ledger) SubmitDeal(ctx context.Context, sub DealSubmission) (string, error) {
	user, err := l.registered(ctx, sub.SubmitterID)
	if err != nil {
		return "", err
	}
	switch sub.Role {
	case domain.RoleSetter, domain.RoleCloser, domain.RoleSelfGenerated:
	default:
		return "", domain.Invalid("unknown deal role %q", sub.Role)
	}
	niche := sub.Niche
	if niche == "" {
		niche = user.Niche
	}
	if _, err := domain.ParseNiche(string(niche)); err != nil {
		return "", err
	}
	if sub.Amount.IsNegative() {
		return "", domain.Invalid("deal amount cannot be negative")
	}
	if sub.Amount.GreaterThan(MaxDealAmount) {
		return "", domain.Invalid("deal amount cannot exceed $%s", MaxDealAmount.StringFixed(0))
	}
	desc := strings.TrimSpace(sub.Description)
	if len([]rune(desc)) > maxDescriptionLength {
		return "", domain.Invalid("description is limited to %d characters", maxDescriptionLength)
	}

	d := &domain.Deal{
		ID:          uuid.NewString(),
		SubmitterID: sub.SubmitterID,
		Role:        sub.Role,
		Niche:       niche,
		Amount:      sub.Amount,
		Description: desc,
		State:       domain.DealPending,
		SubmittedAt: l.now().UTC(),
	}
	if err := l.store.PutDeal(ctx, d); err != nil {
		return "", err
	}
	l.log.Info().Str("deal", d.ID).Str("user", d.SubmitterID).Str("role", string(d.Role)).
		Str("niche", string(d.Niche)).Str("amount", d.Amount.String()).Msg("Deal submitted")
	return d.ID, nil
}

// ApproveDeal awards the deal's points. A deal can be decided only once.
func (l *Ledger) ApproveDeal(ctx context.Context, dealID, approverID string) (int, error) {
	d, err := l.pending(ctx, dealID)
	if err != nil {
		return 0, err
	}
	now := l.now().UTC()
	d.State = domain.DealApproved
	d.Points = AwardForDeal(d, l.table)
	d.PointTableVersion = l.table.Version
	d.ApproverID = approverID
	d.DecidedAt = &now
	if err := l.store.DecideDeal(ctx, d); err != nil {
		return 0, err
	}
	l.metrics.DealDecided("approved")
	l.log.Info().Str("deal", d.ID).Str("user", d.SubmitterID).Str("approver", approverID).
		Int("points", d.Points).Msg("Deal approved")
	return d.Points, nil
}

// RejectDeal closes the deal without points.
func (l *Ledger) RejectDeal(ctx context.Context, dealID, approverID, reason string) error {
	d, err := l.pending(ctx, dealID)
	if err != nil {
		return err
	}
	now := l.now().UTC()
	d.State = domain.DealRejected
	d.Points = 0
	d.ApproverID = approverID
	d.DecisionNote = strings.TrimSpace(reason)
	d.DecidedAt = &now
	if err := l.store.DecideDeal(ctx, d); err != nil {
		return err
	}
	l.metrics.DealDecided("rejected")
	l.log.Info().Str("deal", d.ID).Str("user", d.SubmitterID).Str("approver", approverID).
		Str("reason", d.DecisionNote).Msg("Deal rejected")
	return nil
}

// GetDeal loads a deal by id.
func (l *Ledger) GetDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	return l.store.GetDeal(ctx, dealID)
}

// PendingDeals returns the review queue, oldest first.
func (l *Ledger) PendingDeals(ctx context.Context) ([]*domain.Deal, error) {
	deals, skipped, err := l.store.ListDealsByState(ctx, domain.DealPending)
	if err != nil {
		return nil, err
	}
	l.reportSkipped(skipped)
	return deals, nil
}

func (l *Ledger) pending(ctx context.Context, dealID string) (*domain.Deal, error) {
	d, err := l.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if d.State != domain.DealPending {
		return nil, fmt.Errorf("deal %s is %s: %w", d.ID, d.State, domain.ErrDealDecided)
	}
	return d, nil
}

func (l *Ledger) registered(ctx context.Context, userID string) (*domain.UserProfile, error) {
	u, err := l.store.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotRegistered)
	}
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return nil, fmt.Errorf("user %s is disabled: %w", userID, domain.ErrNotRegistered)
	}
	return u, nil
}
