package practice

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/personality"
)

// live is a non-terminal session held by the Manager.
type live struct {
	// turn is held for the whole of a turn or an end, gateway call included.
	turn   sync.Mutex
	ending atomic.Bool

	mu      sync.Mutex
	sess    *domain.PracticeSession
	profile personality.Profile
}

func (l *live) snapshot() *domain.PracticeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.Clone()
}

// update applies fn and returns a copy of the result.
func (l *live) update(fn func(*domain.PracticeSession)) *domain.PracticeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.sess)
	return l.sess.Clone()
}

var closingPhrases = []string{
	"need to go",
	"have to run",
	"not interested",
	"no thanks",
	"think about it",
	"call you back",
	"maybe later",
	"talk to my husband",
	"talk to my wife",
}

// closesConversation reports whether the partner is wrapping up.
func closesConversation(reply string) bool {
	reply = strings.ToLower(reply)
	for _, p := range closingPhrases {
		if strings.Contains(reply, p) {
			return true
		}
	}
	return false
}
