package practice

import (
	"context"
	"errors"
	"time"

	"github.com/hunterjsb/doorknock/internal/domain"
)

// ReapIdle ends every session idle for longer than the configured timeout
// and returns how many it ended. Scoring is best effort.
func (m *Manager) ReapIdle(ctx context.Context, now time.Time) int {
	var stale []string
	m.mu.Lock()
	for id, l := range m.sessions {
		if l.ending.Load() {
			continue
		}
		if now.Sub(l.snapshot().LastActivityAt) > m.cfg.IdleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	reaped := 0
	for _, id := range stale {
		_, err := m.EndWithReason(ctx, id, domain.EndByIdle)
		switch {
		case err == nil, errors.Is(err, domain.ErrPartialFailure):
			reaped++
		case errors.Is(err, domain.ErrSessionEnded):
		default:
			m.log.Error().Err(err).Str("session", id).Msg("Failed to reap idle session")
		}
	}
	if reaped > 0 {
		m.log.Info().Int("sessions", reaped).Msg("Reaped idle practice sessions")
	}
	return reaped
}

// StartReaper runs ReapIdle on a ticker in the background and returns a
// function that stops it. If interval <= 0, one minute is used.
func (m *Manager) StartReaper(interval time.Duration) func() {
	if interval <= 0 {
		interval = time.Minute
	}

	m.mu.Lock()
	if m.reaperStop != nil {
		close(m.reaperStop)
	}
	stop := make(chan struct{})
	m.reaperStop = stop
	m.mu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.ReapIdle(context.Background(), m.now())
			case <-stop:
				return
			}
		}
	}()

	return func() {
		m.mu.Lock()
		if m.reaperStop == stop {
			close(m.reaperStop)
			m.reaperStop = nil
		}
		m.mu.Unlock()
	}
}
