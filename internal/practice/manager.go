// Package practice runs practice sessions: one bounded conversation between a
// user and a personality, ended by the user, by inactivity or naturally, and
// scored once at the end.
package practice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
	"github.com/hunterjsb/doorknock/internal/metrics"
	"github.com/hunterjsb/doorknock/internal/personality"
)

// Partner plays the personality and grades finished conversations.
// *gateway.Client satisfies it.
type Partner interface {
	GenerateReply(ctx context.Context, transcript domain.Transcript, profile personality.Profile) (string, error)
	ScoreSession(ctx context.Context, transcript domain.Transcript, rubric personality.Rubric) (domain.Score, error)
}

// Profiles resolves personalities. *personality.Registry satisfies it.
type Profiles interface {
	Get(ctx context.Context, id string) (personality.Profile, error)
	Resolve(ctx context.Context, id string) (personality.Profile, error)
}

// Store persists sessions. *store.Store satisfies it.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.UserProfile, error)
	PutSession(ctx context.Context, sess *domain.PracticeSession) error
	GetSession(ctx context.Context, id string) (*domain.PracticeSession, error)
	ListSessionsByState(ctx context.Context, states ...domain.SessionState) ([]*domain.PracticeSession, []*domain.DataIntegrityError, error)
}

// Config tunes session lifecycles.
type Config struct {
	IdleTimeout time.Duration
	// MaxTurns is the number of user messages after which an end is suggested.
	MaxTurns   int
	PointTable ledger.PointTable

	// UserTurnsPerMinute and GlobalTurnsPerMinute cap partner replies. Zero
	// uses the default; a negative value disables the limit.
	UserTurnsPerMinute   int
	GlobalTurnsPerMinute int
}

const (
	defaultIdleTimeout = 15 * time.Minute
	defaultMaxTurns    = 12
	maxMessageLength   = 2000
)

// Manager owns every live session. Sessions reach the store on every change;
// terminal sessions are only read back from it.
type Manager struct {
	cfg      Config
	store    Store
	partner  Partner
	profiles Profiles
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	limiter  *turnLimiter

	mu       sync.Mutex
	sessions map[string]*live  // session id -> non-terminal session
	byUser   map[string]string // user id -> session id

	reaperStop chan struct{}
}

// NewManager builds a Manager. Zero config values use defaults.
func NewManager(cfg Config, s Store, partner Partner, profiles Profiles, log zerolog.Logger, m *metrics.Metrics) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.PointTable.Version == "" {
		cfg.PointTable = ledger.DefaultPointTable()
	}
	if cfg.UserTurnsPerMinute == 0 {
		cfg.UserTurnsPerMinute = defaultUserPerMinute
	}
	if cfg.GlobalTurnsPerMinute == 0 {
		cfg.GlobalTurnsPerMinute = defaultGlobalPerMinute
	}
	return &Manager{
		cfg:      cfg,
		store:    s,
		partner:  partner,
		profiles: profiles,
		log:      log.With().Str("component", "practice").Logger(),
		metrics:  m,
		now:      time.Now,
		limiter:  newTurnLimiter(cfg.UserTurnsPerMinute, cfg.GlobalTurnsPerMinute),
		sessions: make(map[string]*live),
		byUser:   make(map[string]string),
	}
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Reply string
	// SuggestEnd is set when the conversation reached a natural end.
	SuggestEnd bool
}

// Start opens a session for userID against personalityID. A user can have
// only one non-terminal session at a time.
func (m *Manager) Start(ctx context.Context, userID, personalityID string) (*domain.PracticeSession, error) {
	user, err := m.store.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotRegistered)
	}
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, fmt.Errorf("user %s is disabled: %w", userID, domain.ErrNotRegistered)
	}
	profile, err := m.profiles.Get(ctx, personalityID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	sess := &domain.PracticeSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		PersonalityID:  profile.ID(),
		Transcript:     domain.Transcript{{Speaker: domain.SpeakerPartner, Text: profile.OpeningLine(), At: now}},
		State:          domain.SessionActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	l := &live{sess: sess, profile: profile}

	m.mu.Lock()
	if existing, ok := m.byUser[userID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", existing, domain.ErrAlreadyActive)
	}
	m.byUser[userID] = sess.ID
	m.sessions[sess.ID] = l
	m.mu.Unlock()

	if err := m.store.PutSession(ctx, sess); err != nil {
		m.release(sess)
		return nil, err
	}
	m.metrics.SessionStarted()
	m.log.Info().Str("session", sess.ID).Str("user", userID).Str("personality", profile.ID()).Msg("Practice session started")
	return sess.Clone(), nil
}

// SubmitTurn sends one user message and returns the partner's reply. Turns
// over the rate limit are refused before the message is recorded. If the
// gateway fails the message stays in the transcript and the session stays
// active; submitting the same text again retries without duplicating it.
func (m *Manager) SubmitTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Invalid("message is empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, domain.Invalid("message is limited to %d characters", maxMessageLength)
	}

	l, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if l.ending.Load() {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
	}
	if !l.turn.TryLock() {
		m.metrics.Turn("busy")
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionBusy)
	}
	defer l.turn.Unlock()
	if l.ending.Load() || l.snapshot().State != domain.SessionActive {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
	}

	now := m.now().UTC()
	current := l.snapshot()
	if err := m.limiter.allow(current.UserID, now); err != nil {
		m.metrics.Turn("rate_limited")
		m.log.Warn().Err(err).Str("session", sessionID).Str("user", current.UserID).Msg("Turn rate limited")
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	transcript := current.Transcript
	if pending, ok := transcript.PendingUserLine(); !ok || pending.Text != text {
		transcript = append(transcript, domain.TranscriptEntry{Speaker: domain.SpeakerUser, Text: text, At: now})
	}

	reply, genErr := m.partner.GenerateReply(ctx, transcript, l.profile)
	if genErr == nil {
		transcript = append(transcript, domain.TranscriptEntry{Speaker: domain.SpeakerPartner, Text: reply, At: m.now().UTC()})
	}
	sess := l.update(func(s *domain.PracticeSession) {
		s.Transcript = transcript
		s.LastActivityAt = now
	})
	if err := m.store.PutSession(ctx, sess); err != nil {
		m.log.Error().Err(err).Str("session", sessionID).Msg("Failed to persist turn")
		return nil, err
	}

	if genErr != nil {
		m.metrics.Turn("gateway_error")
		if !errors.Is(genErr, domain.ErrGatewayUnavailable) {
			genErr = fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, genErr)
		}
		return nil, genErr
	}
	m.metrics.Turn("ok")
	return &TurnResult{
		Reply:      reply,
		SuggestEnd: transcript.UserTurns() >= m.cfg.MaxTurns || closesConversation(reply),
	}, nil
}

// End terminates the session at the user's request and scores it.
func (m *Manager) End(ctx context.Context, sessionID string) (*domain.Score, error) {
	return m.EndWithReason(ctx, sessionID, domain.EndByUser)
}

// EndWithReason terminates the session, waiting for an in-flight turn to
// finish first. If scoring fails the session still becomes terminal and the
// error wraps domain.ErrPartialFailure.
func (m *Manager) EndWithReason(ctx context.Context, sessionID string, reason domain.EndReason) (*domain.Score, error) {
	l, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !l.ending.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
	}
	l.turn.Lock()
	defer l.turn.Unlock()

	sess := l.update(func(s *domain.PracticeSession) { s.State = domain.SessionScoring })
	if err := m.store.PutSession(ctx, sess); err != nil {
		m.log.Warn().Err(err).Str("session", sessionID).Msg("Failed to persist scoring state")
	}

	score, scoreErr := m.partner.ScoreSession(ctx, sess.Transcript, l.profile.Rubric())
	ended := m.now().UTC()
	sess = l.update(func(s *domain.PracticeSession) {
		s.State = domain.SessionTerminal
		s.EndedAt = &ended
		s.EndReason = reason
		if scoreErr == nil {
			s.Score = &score
			s.Points = ledger.SessionPoints(&score, m.cfg.PointTable)
		} else {
			s.ScoringFailed = true
		}
	})
	putErr := m.store.PutSession(ctx, sess)
	m.release(sess)
	m.metrics.SessionEnded(string(reason), scoreErr == nil)

	logEvent := m.log.Info()
	if scoreErr != nil {
		logEvent = m.log.Warn().Err(scoreErr)
	}
	logEvent.Str("session", sessionID).Str("user", sess.UserID).Str("reason", string(reason)).
		Int("turns", sess.Transcript.UserTurns()).Int("points", sess.Points).Msg("Practice session ended")

	if putErr != nil {
		return nil, fmt.Errorf("saving ended session %s: %w", sessionID, putErr)
	}
	if scoreErr != nil {
		return nil, fmt.Errorf("session %s: %w: %w", sessionID, domain.ErrPartialFailure, scoreErr)
	}
	out := score.Clone()
	return &out, nil
}

// Get returns a copy of the session. Terminal sessions are read from the store.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.PracticeSession, error) {
	m.mu.Lock()
	l, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return l.snapshot(), nil
	}
	return m.store.GetSession(ctx, sessionID)
}

// Active returns the id of the user's non-terminal session.
func (m *Manager) Active(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	return id, ok
}

// Restore reloads non-terminal sessions after a restart so their users keep
// their slot. Sessions caught mid-scoring are treated as active again.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	sessions, skipped, err := m.store.ListSessionsByState(ctx, domain.SessionActive, domain.SessionScoring)
	if err != nil {
		return 0, fmt.Errorf("restoring sessions: %w", err)
	}
	for _, s := range skipped {
		m.metrics.IntegritySkip(s.Table)
		m.log.Warn().Str("key", s.Key).Str("reason", s.Reason).Msg("Skipping unreadable session")
	}

	restored := 0
	for _, sess := range sessions {
		profile, err := m.profiles.Resolve(ctx, sess.PersonalityID)
		if err != nil {
			m.log.Warn().Err(err).Str("session", sess.ID).Str("personality", sess.PersonalityID).Msg("Cannot restore session")
			continue
		}
		sess.State = domain.SessionActive

		m.mu.Lock()
		if _, taken := m.byUser[sess.UserID]; taken {
			m.mu.Unlock()
			m.log.Warn().Str("session", sess.ID).Str("user", sess.UserID).Msg("User already has a restored session")
			continue
		}
		m.byUser[sess.UserID] = sess.ID
		m.sessions[sess.ID] = &live{sess: sess, profile: profile}
		m.mu.Unlock()

		m.metrics.SessionRestored()
		restored++
	}
	if restored > 0 {
		m.log.Info().Int("sessions", restored).Msg("Restored practice sessions")
	}
	return restored, nil
}

// lookup finds a live session, distinguishing ended sessions from unknown ones.
func (m *Manager) lookup(ctx context.Context, sessionID string) (*live, error) {
	m.mu.Lock()
	l, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return l, nil
	}
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
}

func (m *Manager) release(sess *domain.PracticeSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sess.ID)
	if m.byUser[sess.UserID] == sess.ID {
		delete(m.byUser, sess.UserID)
	}
}
