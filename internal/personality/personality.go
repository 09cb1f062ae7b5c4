// Package personality is the catalog of conversation partners a user can
// practice against: the built-in homeowners plus user-created custom ones.
package personality

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// Kind tags the origin of a profile.
type Kind string

const (
	BuiltIn Kind = "built-in"
	Custom  Kind = "custom"
)

// Origin is a tagged variant: built-in profiles have no owner, custom ones do.
type Origin struct {
	Kind    Kind
	OwnerID string
}

// OwnedBy reports whether the profile is a custom one owned by userID.
func (o Origin) OwnedBy(userID string) bool {
	return o.Kind == Custom && o.OwnerID == userID
}

// Traits are the behavioral dials of a partner, each in [0,1].
type Traits struct {
	Aggression       float64 `json:"aggression" yaml:"aggression"`
	PriceSensitivity float64 `json:"priceSensitivity" yaml:"priceSensitivity"`
	Verbosity        float64 `json:"verbosity" yaml:"verbosity"`
	Patience         float64 `json:"patience" yaml:"patience"`
}

func (t Traits) clamped() Traits {
	c := func(v float64) float64 { return math.Max(0, math.Min(1, v)) }
	return Traits{
		Aggression:       c(t.Aggression),
		PriceSensitivity: c(t.PriceSensitivity),
		Verbosity:        c(t.Verbosity),
		Patience:         c(t.Patience),
	}
}

// Render formats traits for inclusion in a system prompt.
func (t Traits) Render() string {
	level := func(v float64) string {
		switch {
		case v >= 0.75:
			return "high"
		case v >= 0.4:
			return "medium"
		default:
			return "low"
		}
	}
	return fmt.Sprintf("- Aggression: %s\n- Price sensitivity: %s\n- Verbosity: %s\n- Patience: %s",
		level(t.Aggression), level(t.PriceSensitivity), level(t.Verbosity), level(t.Patience))
}

// Criterion is one weighted category of a scoring rubric.
type Criterion struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Rubric is the scoring guide handed to the gateway at the end of a session.
type Rubric []Criterion

// Normalized returns a copy whose weights sum to 1. Non-positive weights are dropped.
func (r Rubric) Normalized() Rubric {
	var sum float64
	for _, c := range r {
		if c.Weight > 0 {
			sum += c.Weight
		}
	}
	if sum == 0 {
		return nil
	}
	out := make(Rubric, 0, len(r))
	for _, c := range r {
		if c.Weight > 0 {
			c.Weight = c.Weight / sum
			out = append(out, c)
		}
	}
	return out
}

// Lookup finds a criterion by key.
func (r Rubric) Lookup(key string) (Criterion, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, c := range r {
		if c.Key == key {
			return c, true
		}
	}
	return Criterion{}, false
}

// Profile is implemented by every personality, built-in or custom.
type Profile interface {
	ID() string
	Name() string
	Description() string
	Origin() Origin
	Traits() Traits
	OpeningLine() string
	SystemPrompt() string
	Rubric() Rubric
}

// CustomProfile is a user-created personality. It is persisted by the store
// and only mutated through the Registry, which enforces ownership.
type CustomProfile struct {
	PersonalityID string    `json:"id"`
	OwnerID       string    `json:"ownerId"`
	DisplayName   string    `json:"name"`
	About         string    `json:"description"`
	Behavior      string    `json:"behavior"`
	Starters      []string  `json:"starters"`
	Dials         Traits    `json:"traits"`
	Scoring       Rubric    `json:"rubric"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

var _ Profile = (*CustomProfile)(nil)

func (p *CustomProfile) ID() string          { return p.PersonalityID }
func (p *CustomProfile) Name() string        { return p.DisplayName }
func (p *CustomProfile) Description() string { return p.About }
func (p *CustomProfile) Origin() Origin      { return Origin{Kind: Custom, OwnerID: p.OwnerID} }
func (p *CustomProfile) Traits() Traits      { return p.Dials }

func (p *CustomProfile) Rubric() Rubric {
	if len(p.Scoring) == 0 {
		return defaultCustomRubric
	}
	return p.Scoring
}

func (p *CustomProfile) OpeningLine() string {
	return pick(p.Starters, "Yeah? Can I help you?")
}

func (p *CustomProfile) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are playing '%s', a homeowner who just had a door-to-door salesperson knock on the door. ", p.DisplayName)
	b.WriteString("The human is the salesperson in training. Stay in character, never sell anything yourself, ")
	b.WriteString("and keep replies conversational and under 150 words.\n\n")
	fmt.Fprintf(&b, "Personality: %s\n\nTraits:\n%s\n", p.About, p.Dials.Render())
	if p.Behavior != "" {
		fmt.Fprintf(&b, "\nBehavior:\n%s\n", p.Behavior)
	}
	return b.String()
}

// Clone returns a copy safe to hand outside the registry.
func (p *CustomProfile) Clone() *CustomProfile {
	out := *p
	out.Starters = append([]string(nil), p.Starters...)
	out.Scoring = append(Rubric(nil), p.Scoring...)
	return &out
}

var defaultCustomRubric = Rubric{
	{Key: "rapport", Label: "rapport building", Weight: 0.25},
	{Key: "objection_handling", Label: "objection handling", Weight: 0.25},
	{Key: "discovery", Label: "needs discovery", Weight: 0.20},
	{Key: "value", Label: "value communication", Weight: 0.20},
	{Key: "closing", Label: "closing", Weight: 0.10},
}

func pick(lines []string, fallback string) string {
	if len(lines) == 0 {
		return fallback
	}
	return lines[rand.IntN(len(lines))]
}
