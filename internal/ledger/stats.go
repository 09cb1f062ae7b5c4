package ledger

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/hunterjsb/doorknock/internal/domain"
)

// Stats summarises a user's all-time activity.
type Stats struct {
	UserID            string
	ApprovedByRole    map[domain.DealRole]int
	PendingDeals      int
	RejectedDeals     int
	DealPoints        int
	SessionPoints     int
	SessionsCompleted int
	SessionsUnscored  int
	MeanScore         float64
	ScoreStdDev       float64
	BestScore         int
	Skipped           int
}

// TotalPoints is the all-time point total.
func (s Stats) TotalPoints() int { return s.DealPoints + s.SessionPoints }

// UserStats gathers the user's deal and practice history.
func (l *Ledger) UserStats(ctx context.Context, userID string) (Stats, error) {
	st := Stats{UserID: userID, ApprovedByRole: make(map[domain.DealRole]int)}

	deals, skippedDeals, err := l.store.ListDealsByUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	for _, d := range deals {
		switch d.State {
		case domain.DealApproved:
			st.ApprovedByRole[d.Role]++
			st.DealPoints += d.Points
		case domain.DealPending:
			st.PendingDeals++
		case domain.DealRejected:
			st.RejectedDeals++
		}
	}

	sessions, skippedSessions, err := l.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	var scores []float64
	for _, s := range sessions {
		if s.State != domain.SessionTerminal {
			continue
		}
		if s.Score == nil {
			st.SessionsUnscored++
			continue
		}
		st.SessionsCompleted++
		st.SessionPoints += s.Points
		scores = append(scores, float64(s.Score.Value))
		st.BestScore = max(st.BestScore, s.Score.Value)
	}
	if len(scores) > 0 {
		st.MeanScore = stat.Mean(scores, nil)
	}
	if len(scores) > 1 {
		st.ScoreStdDev = stat.StdDev(scores, nil)
	}
	if math.IsNaN(st.ScoreStdDev) {
		st.ScoreStdDev = 0
	}

	st.Skipped = len(skippedDeals) + len(skippedSessions)
	l.reportSkipped(append(skippedDeals, skippedSessions...))
	return st, nil
}
