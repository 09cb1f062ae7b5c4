package personality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/hunterjsb/doorknock/internal/domain"
)

const (
	maxNameLength     = 50
	maxCustomPerOwner = 10
	defaultCacheSize  = 256
	defaultCacheTTL   = 30 * time.Minute
)

// Store persists custom personalities. GetPersonality returns domain.ErrNotFound
// for unknown ids.
type Store interface {
	GetPersonality(ctx context.Context, id string) (*CustomProfile, error)
	PutPersonality(ctx context.Context, p *CustomProfile) error
	ListPersonalities(ctx context.Context, ownerID string) ([]*CustomProfile, error)
}

// Spec is the user-supplied definition of a custom personality.
type Spec struct {
	Name        string
	Description string
	Behavior    string
	Starters    []string
	Traits      Traits
	// Weights optionally overrides the default rubric weights by criterion key.
	Weights map[string]float64
}

// Registry resolves built-in and custom profiles.
type Registry struct {
	store Store
	cache *expirable.LRU[string, *CustomProfile]
	log   zerolog.Logger
	now   func() time.Time

	// serializes create/update per registry so the per-owner limits hold
	mu sync.Mutex
}

// NewRegistry creates a registry backed by store. Non-positive cache settings use defaults.
func NewRegistry(store Store, cacheSize int, ttl time.Duration, log zerolog.Logger) *Registry {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Registry{
		store: store,
		cache: expirable.NewLRU[string, *CustomProfile](cacheSize, nil, ttl),
		log:   log.With().Str("component", "personality").Logger(),
		now:   time.Now,
	}
}

// Get resolves a profile by id. Built-ins win over customs.
func (r *Registry) Get(ctx context.Context, id string) (Profile, error) {
	if p, ok := LookupBuiltIn(id); ok {
		return p, nil
	}
	if cached, ok := r.cache.Get(id); ok {
		return cached.Clone(), nil
	}

	p, err := r.store.GetPersonality(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("personality %s: %w", id, domain.ErrNotFound)
	}
	r.cache.Add(id, p)
	return p.Clone(), nil
}

// Resolve is Get for profiles already in use: deactivated customs still
// resolve so sessions started against them can finish.
func (r *Registry) Resolve(ctx context.Context, id string) (Profile, error) {
	p, err := r.Get(ctx, id)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return p, err
	}
	custom, err := r.store.GetPersonality(ctx, id)
	if err != nil {
		return nil, err
	}
	return custom.Clone(), nil
}

// ListFor returns the built-ins followed by the user's active custom profiles.
func (r *Registry) ListFor(ctx context.Context, userID string) ([]Profile, error) {
	out := BuiltIns()
	customs, err := r.store.ListPersonalities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing personalities: %w", err)
	}
	for _, c := range customs {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// Create validates spec and stores a new custom profile owned by ownerID.
func (r *Registry) Create(ctx context.Context, ownerID string, spec Spec) (*CustomProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.ListPersonalities(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing personalities: %w", err)
	}
	active := 0
	for _, e := range existing {
		if !e.Active {
			continue
		}
		active++
		if strings.EqualFold(e.DisplayName, strings.TrimSpace(spec.Name)) {
			return nil, domain.Invalid("you already have a personality named %q", e.DisplayName)
		}
	}
	if active >= maxCustomPerOwner {
		return nil, domain.Invalid("at most %d custom personalities per user", maxCustomPerOwner)
	}

	now := r.now().UTC()
	p := &CustomProfile{
		PersonalityID: uuid.NewString(),
		OwnerID:       ownerID,
		Active:        true,
		CreatedAt:     now,
	}
	if err := apply(p, spec, now); err != nil {
		return nil, err
	}
	if err := r.store.PutPersonality(ctx, p); err != nil {
		return nil, fmt.Errorf("saving personality: %w", err)
	}

	r.log.Info().Str("personality", p.PersonalityID).Str("owner", ownerID).Str("name", p.DisplayName).Msg("Custom personality created")
	return p.Clone(), nil
}

// Update replaces the definition of a custom profile. Only its owner may do so.
func (r *Registry) Update(ctx context.Context, ownerID, id string, spec Spec) (*CustomProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := apply(p, spec, r.now().UTC()); err != nil {
		return nil, err
	}
	if err := r.store.PutPersonality(ctx, p); err != nil {
		return nil, fmt.Errorf("saving personality: %w", err)
	}
	r.cache.Remove(id)
	return p.Clone(), nil
}

// Delete deactivates a custom profile. Past sessions keep referring to it.
func (r *Registry) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	p.Active = false
	p.UpdatedAt = r.now().UTC()
	if err := r.store.PutPersonality(ctx, p); err != nil {
		return fmt.Errorf("saving personality: %w", err)
	}
	r.cache.Remove(id)
	return nil
}

func (r *Registry) owned(ctx context.Context, ownerID, id string) (*CustomProfile, error) {
	if _, ok := LookupBuiltIn(id); ok {
		return nil, fmt.Errorf("built-in personality %s: %w", id, domain.ErrNotOwner)
	}
	p, err := r.store.GetPersonality(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("personality %s: %w", id, domain.ErrNotFound)
	}
	if !p.Origin().OwnedBy(ownerID) {
		return nil, fmt.Errorf("personality %s: %w", id, domain.ErrNotOwner)
	}
	return p, nil
}

func apply(p *CustomProfile, spec Spec, now time.Time) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return domain.Invalid("name must be 1-%d characters", maxNameLength)
	}
	if _, ok := LookupBuiltIn(name); ok {
		return domain.Invalid("%q is reserved for a built-in personality", name)
	}
	about := strings.TrimSpace(spec.Description)
	if about == "" {
		return domain.Invalid("description is required")
	}

	var starters []string
	for _, s := range spec.Starters {
		if s = strings.TrimSpace(s); s != "" {
			starters = append(starters, s)
		}
	}

	rubric, err := rubricFromWeights(spec.Weights)
	if err != nil {
		return err
	}

	p.DisplayName = name
	p.About = about
	p.Behavior = strings.TrimSpace(spec.Behavior)
	p.Starters = starters
	p.Dials = spec.Traits.clamped()
	p.Scoring = rubric
	p.UpdatedAt = now
	return nil
}

func rubricFromWeights(weights map[string]float64) (Rubric, error) {
	if len(weights) == 0 {
		return nil, nil
	}
	rubric := make(Rubric, 0, len(defaultCustomRubric))
	for _, c := range defaultCustomRubric {
		w, ok := weights[c.Key]
		if !ok {
			w = c.Weight
		}
		if w < 0 {
			return nil, domain.Invalid("weight for %s must not be negative", c.Key)
		}
		c.Weight = w
		rubric = append(rubric, c)
	}
	for key := range weights {
		if _, ok := defaultCustomRubric.Lookup(key); !ok {
			return nil, domain.Invalid("unknown rubric category %q", key)
		}
	}
	normalized := rubric.Normalized()
	if normalized == nil {
		return nil, domain.Invalid("rubric weights must not all be zero")
	}
	return normalized, nil
}
