package discord

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hunterjsb/doorknock/internal/domain"
)

var (
	errNotAdmin  = errors.New("only admins can review deals")
	errNoSession = errors.New("no active practice session")
)

// describeError turns a command failure into an error embed title and description.
func describeError(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrPartialFailure):
		return "⏳ Score Pending", "Your session was saved but the scorer is unavailable. Your score is pending."
	case errors.Is(err, domain.ErrAlreadyActive):
		return "🚪 Session In Progress", "Finish your current session first with `/practice end`."
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return "📵 Partner Unavailable", "The homeowner didn't answer. Send your message again to retry."
	case errors.Is(err, domain.ErrRateLimited):
		return "🐢 Slow Down", rateLimitReason(err)
	case errors.Is(err, domain.ErrSessionBusy):
		return "✋ Hold On", "Your last message is still being answered."
	case errors.Is(err, domain.ErrSessionEnded), errors.Is(err, errNoSession):
		return "Session Ended", "You have no active session. Start one with `/practice start`."
	case errors.Is(err, domain.ErrNotRegistered):
		return "Not Registered", "Register first with `/register`."
	case errors.Is(err, domain.ErrNotOwner):
		return "Not Allowed", "Only the owner can change that personality."
	case errors.Is(err, errNotAdmin):
		return "Not Allowed", "Only admins can approve or reject deals."
	case errors.Is(err, domain.ErrDealDecided):
		return "Already Decided", "That deal has already been approved or rejected."
	case errors.Is(err, domain.ErrNotFound):
		return "Not Found", "Nothing matches that id."
	case errors.Is(err, domain.ErrInvalidInput):
		return "Invalid Input", invalidReason(err)
	default:
		return "Something Went Wrong", "Please try again in a moment."
	}
}

func invalidReason(err error) string {
	msg := err.Error()
	prefix := domain.ErrInvalidInput.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		msg = msg[i+len(prefix):]
	}
	if msg == "" {
		return "Check your input and try again."
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func rateLimitReason(err error) string {
	var rl *domain.RateLimitError
	if !errors.As(err, &rl) {
		return "Too many messages. Try again shortly."
	}
	wait := max(rl.RetryAfter.Round(time.Second), time.Second)
	if rl.Scope == domain.RateLimitGlobal {
		return fmt.Sprintf("The homeowners are swamped right now. Try again in %s.", wait)
	}
	return fmt.Sprintf("You're sending messages too fast. Try again in %s.", wait)
}
