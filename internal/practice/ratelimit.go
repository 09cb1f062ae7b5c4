package practice

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/hunterjsb/doorknock/internal/domain"
)

const (
	defaultUserPerMinute   = 5
	defaultGlobalPerMinute = 50

	// An idle bucket has refilled long before it is evicted.
	limiterIdleTTL  = 10 * time.Minute
	limiterCapacity = 4096
)

// turnLimiter caps partner calls per user and for the whole bot. Both are
// token buckets refilled over a minute with a burst of one minute's worth.
type turnLimiter struct {
	perUser int
	global  *rate.Limiter

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

// newTurnLimiter returns nil when both limits are disabled.
func newTurnLimiter(perUser, global int) *turnLimiter {
	if perUser <= 0 && global <= 0 {
		return nil
	}
	l := &turnLimiter{perUser: perUser}
	if global > 0 {
		l.global = rate.NewLimiter(perMinute(global), global)
	}
	if perUser > 0 {
		l.buckets = expirable.NewLRU[string, *rate.Limiter](limiterCapacity, nil, limiterIdleTTL)
	}
	return l
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// allow takes one token for userID from both buckets, or none of them. On
// refusal the error carries how long until a token frees up.
func (l *turnLimiter) allow(userID string, now time.Time) error {
	if l == nil {
		return nil
	}
	var user *rate.Reservation
	if l.buckets != nil {
		user = l.bucket(userID).ReserveN(now, 1)
		if d := user.DelayFrom(now); d > 0 {
			user.CancelAt(now)
			return &domain.RateLimitError{Scope: domain.RateLimitUser, RetryAfter: d}
		}
	}
	if l.global != nil {
		r := l.global.ReserveN(now, 1)
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			if user != nil {
				user.CancelAt(now)
			}
			return &domain.RateLimitError{Scope: domain.RateLimitGlobal, RetryAfter: d}
		}
	}
	return nil
}

func (l *turnLimiter) bucket(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(userID); ok {
		return b
	}
	b := rate.NewLimiter(perMinute(l.perUser), l.perUser)
	l.buckets.Add(userID, b)
	return b
}
