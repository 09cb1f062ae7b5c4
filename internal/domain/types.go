// Package domain holds the data model shared by the practice, ledger, store
// and presentation packages.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Niche is the product line a user sells.
type Niche string

const (
	NicheSolar       Niche = "solar"
	NicheFiber       Niche = "fiber"
	NicheLandscaping Niche = "landscaping"
)

// Niches lists every supported niche in display order.
var Niches = []Niche{NicheSolar, NicheFiber, NicheLandscaping}

// ParseNiche normalizes user input into a Niche.
func ParseNiche(s string) (Niche, error) {
	n := Niche(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Niches {
		if n == known {
			return n, nil
		}
	}
	return "", Invalid("unknown niche %q", s)
}

// UserProfile is a registered member. Profiles are disabled, never deleted.
type UserProfile struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName"`
	Niche           Niche     `json:"niche"`
	ExperienceLevel string    `json:"experienceLevel,omitempty"`
	RoleType        string    `json:"roleType,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Disabled        bool      `json:"disabled"`
}

// Speaker identifies who said a transcript line.
type Speaker string

const (
	SpeakerUser    Speaker = "user"
	SpeakerPartner Speaker = "partner"
)

// TranscriptEntry is one line of a practice conversation.
type TranscriptEntry struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Transcript is the ordered conversation of a session.
type Transcript []TranscriptEntry

// UserTurns counts the lines spoken by the user.
func (t Transcript) UserTurns() int {
	n := 0
	for _, e := range t {
		if e.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}

// PendingUserLine returns the trailing user line that has no partner reply yet.
func (t Transcript) PendingUserLine() (TranscriptEntry, bool) {
	if len(t) == 0 || t[len(t)-1].Speaker != SpeakerUser {
		return TranscriptEntry{}, false
	}
	return t[len(t)-1], true
}

// Clone returns a copy that can be mutated without affecting t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// SessionState is the lifecycle position of a practice session.
type SessionState string

const (
	SessionActive   SessionState = "active"
	SessionScoring  SessionState = "scoring"
	SessionTerminal SessionState = "terminal"
)

// EndReason records why a session reached its terminal state.
type EndReason string

const (
	EndByUser    EndReason = "user"
	EndByIdle    EndReason = "idle"
	EndByNatural EndReason = "natural"
)

// PracticeSession is one bounded practice conversation.
type PracticeSession struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	PersonalityID  string       `json:"personalityId"`
	Transcript     Transcript   `json:"transcript"`
	State          SessionState `json:"state"`
	StartedAt      time.Time    `json:"startedAt"`
	LastActivityAt time.Time    `json:"lastActivityAt"`
	EndedAt        *time.Time   `json:"endedAt,omitempty"`
	EndReason      EndReason    `json:"endReason,omitempty"`
	Score          *Score       `json:"score,omitempty"`
	ScoringFailed  bool         `json:"scoringFailed"`
	Points         int          `json:"points"`
}

// Clone returns a deep copy of the session.
func (s *PracticeSession) Clone() *PracticeSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Transcript = s.Transcript.Clone()
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.Score != nil {
		sc := s.Score.Clone()
		out.Score = &sc
	}
	return &out
}

// DealRole is how the submitter took part in the deal.
type DealRole string

const (
	RoleSetter        DealRole = "setter"
	RoleCloser        DealRole = "closer"
	RoleSelfGenerated DealRole = "self_generated"
)

// ParseDealRole accepts the canonical names and the short aliases used in chat.
func ParseDealRole(s string) (DealRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "setter", "set":
		return RoleSetter, nil
	case "closer", "close":
		return RoleCloser, nil
	case "self_generated", "self-generated", "self":
		return RoleSelfGenerated, nil
	}
	return "", Invalid("unknown deal role %q", s)
}

// DealState is the approval state of a deal.
type DealState string

const (
	DealPending  DealState = "pending"
	DealApproved DealState = "approved"
	DealRejected DealState = "rejected"
)

// Deal is a user-submitted sales outcome awaiting or past admin review.
type Deal struct {
	ID                string          `json:"id"`
	SubmitterID       string          `json:"submitterId"`
	Role              DealRole        `json:"role"`
	Niche             Niche           `json:"niche"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description,omitempty"`
	State             DealState       `json:"state"`
	Points            int             `json:"points"`
	PointTableVersion string          `json:"pointTableVersion,omitempty"`
	ApproverID        string          `json:"approverId,omitempty"`
	DecisionNote      string          `json:"decisionNote,omitempty"`
	SubmittedAt       time.Time       `json:"submittedAt"`
	DecidedAt         *time.Time      `json:"decidedAt,omitempty"`
}

// Window is a leaderboard aggregation range.
type Window string

const (
	Weekly  Window = "weekly"
	Monthly Window = "monthly"
	AllTime Window = "all-time"
)

// ParseWindow accepts the canonical names and a few chat aliases.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly", "week", "":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	case "all-time", "alltime", "all":
		return AllTime, nil
	}
	return "", Invalid("unknown window %q", s)
}

// Bounds returns the inclusive [from, to] range of w ending at asOf.
// Weeks start on Monday; all boundaries are computed in UTC.
func (w Window) Bounds(asOf time.Time) (time.Time, time.Time) {
	to := asOf.UTC()
	day := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), to
	case Monthly:
		return time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC), to
	default:
		return time.Time{}, to
	}
}

// Contains reports whether at falls inside the window ending at asOf.
func (w Window) Contains(at, asOf time.Time) bool {
	from, to := w.Bounds(asOf)
	return !at.Before(from) && !at.After(to)
}

// PointSource tells where a point event came from.
type PointSource string

const (
	SourceDeal    PointSource = "deal"
	SourceSession PointSource = "session"
)

// PointEvent is a normalized ledger input: points earned by a user at a moment.
type PointEvent struct {
	UserID   string
	Points   int
	At       time.Time
	Source   PointSource
	SourceID string
}

// LeaderboardEntry is one ranked row. ReachedAt is when the user reached Points.
type LeaderboardEntry struct {
	UserID    string    `json:"userId"`
	Points    int       `json:"points"`
	Rank      int       `json:"rank"`
	ReachedAt time.Time `json:"reachedAt"`
}

// Snapshot is an immutable capture of a ranking.
type Snapshot struct {
	ID      string             `json:"id"`
	Window  Window             `json:"window"`
	AsOf    time.Time          `json:"asOf"`
	TakenAt time.Time          `json:"takenAt"`
	Entries []LeaderboardEntry `json:"entries"`
}

// RankOf returns the user's rank in the snapshot, or 0 if absent.
func (s *Snapshot) RankOf(userID string) int {
	for _, e := range s.Entries {
		if e.UserID == userID {
			return e.Rank
		}
	}
	return 0
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("%s@%s (%d entries)", s.Window, s.AsOf.Format(time.RFC3339), len(s.Entries))
}
