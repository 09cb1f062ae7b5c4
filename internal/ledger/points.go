package ledger

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/hunterjsb/doorknock/internal/domain"
)

// NicheRule is the per-niche point schedule of approved deals.
type NicheRule struct {
	Setter        int
	Closer        int
	SelfGenerated int
	// Every full BonusStep of amount above BonusThreshold adds BonusPoints.
	BonusThreshold decimal.Decimal
	BonusStep      decimal.Decimal
	BonusPoints    int
}

// SessionTier awards Points to scored sessions with a value of at least MinScore.
type SessionTier struct {
	MinScore int
	Points   int
}

// PointTable holds every point rule. Deals record the Version they were
// scored with.
type PointTable struct {
	Version      string
	DefaultNiche domain.Niche
	Niches       map[domain.Niche]NicheRule
	SessionTiers []SessionTier
}

// DefaultPointTable mirrors the schedule the sales team has always used.
func DefaultPointTable() PointTable {
	flat := NicheRule{Setter: 1, Closer: 1, SelfGenerated: 2}
	landscaping := flat
	landscaping.BonusThreshold = decimal.NewFromInt(50000)
	landscaping.BonusStep = decimal.NewFromInt(50000)
	landscaping.BonusPoints = 1
	return PointTable{
		Version:      "default-v1",
		DefaultNiche: domain.NicheSolar,
		Niches: map[domain.Niche]NicheRule{
			domain.NicheSolar:       flat,
			domain.NicheFiber:       flat,
			domain.NicheLandscaping: landscaping,
		},
		SessionTiers: []SessionTier{
			{MinScore: 90, Points: 3},
			{MinScore: 75, Points: 2},
			{MinScore: 60, Points: 1},
		},
	}
}

// Validate rejects tables that could award negative points.
func (t PointTable) Validate() error {
	if t.Version == "" {
		return domain.Invalid("point table needs a version")
	}
	if _, ok := t.Niches[t.DefaultNiche]; !ok {
		return domain.Invalid("default niche %q has no rule", t.DefaultNiche)
	}
	for niche, r := range t.Niches {
		if r.Setter < 0 || r.Closer < 0 || r.SelfGenerated < 0 || r.BonusPoints < 0 {
			return domain.Invalid("niche %s: negative points", niche)
		}
		if r.BonusThreshold.IsNegative() {
			return domain.Invalid("niche %s: negative bonus threshold", niche)
		}
		if r.BonusPoints > 0 && !r.BonusStep.IsPositive() {
			return domain.Invalid("niche %s: bonus points need a positive bonus step", niche)
		}
	}
	for _, tier := range t.SessionTiers {
		if tier.Points < 0 || tier.MinScore < 0 || tier.MinScore > 100 {
			return domain.Invalid("session tier %d/%d out of range", tier.MinScore, tier.Points)
		}
	}
	return nil
}

func (t PointTable) rule(n domain.Niche) NicheRule {
	if r, ok := t.Niches[n]; ok {
		return r
	}
	return t.Niches[t.DefaultNiche]
}

// AwardForDeal returns the points an approved deal is worth under table.
func AwardForDeal(d *domain.Deal, table PointTable) int {
	r := table.rule(d.Niche)
	var points int
	switch d.Role {
	case domain.RoleSetter:
		points = r.Setter
	case domain.RoleCloser:
		points = r.Closer
	case domain.RoleSelfGenerated:
		points = r.SelfGenerated
	}
	if r.BonusPoints > 0 && r.BonusStep.IsPositive() && d.Amount.GreaterThan(r.BonusThreshold) {
		steps := d.Amount.Sub(r.BonusThreshold).Div(r.BonusStep).Floor().IntPart()
		points += int(steps) * r.BonusPoints
	}
	return max(points, 0)
}

// SessionPoints returns the points a scored session earns. Unscored sessions earn none.
func SessionPoints(score *domain.Score, table PointTable) int {
	if score == nil {
		return 0
	}
	tiers := append([]SessionTier(nil), table.SessionTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinScore > tiers[j].MinScore })
	for _, tier := range tiers {
		if score.Value >= tier.MinScore {
			return tier.Points
		}
	}
	return 0
}

type pointTableFile struct {
	Version      string `yaml:"version"`
	DefaultNiche string `yaml:"default_niche"`
	Niches       map[string]struct {
		Setter         int    `yaml:"setter"`
		Closer         int    `yaml:"closer"`
		SelfGenerated  int    `yaml:"self_generated"`
		BonusThreshold string `yaml:"bonus_threshold"`
		BonusStep      string `yaml:"bonus_step"`
		BonusPoints    int    `yaml:"bonus_points"`
	} `yaml:"niches"`
	SessionTiers []struct {
		MinScore int `yaml:"min_score"`
		Points   int `yaml:"points"`
	} `yaml:"session_tiers"`
}

// LoadPointTable reads a YAML point table from path.
func LoadPointTable(path string) (PointTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PointTable{}, fmt.Errorf("reading point table: %w", err)
	}
	return ParsePointTable(raw)
}

// ParsePointTable decodes and validates a YAML point table.
func ParsePointTable(raw []byte) (PointTable, error) {
	var f pointTableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return PointTable{}, fmt.Errorf("%w: point table: %w", domain.ErrInvalidInput, err)
	}

	t := PointTable{
		Version:      f.Version,
		DefaultNiche: domain.Niche(f.DefaultNiche),
		Niches:       make(map[domain.Niche]NicheRule, len(f.Niches)),
	}
	decimalOrZero := func(s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	}
	for name, n := range f.Niches {
		niche, err := domain.ParseNiche(name)
		if err != nil {
			return PointTable{}, err
		}
		threshold, err := decimalOrZero(n.BonusThreshold)
		if err != nil {
			return PointTable{}, domain.Invalid("niche %s: bonus threshold: %v", name, err)
		}
		step, err := decimalOrZero(n.BonusStep)
		if err != nil {
			return PointTable{}, domain.Invalid("niche %s: bonus step: %v", name, err)
		}
		t.Niches[niche] = NicheRule{
			Setter:         n.Setter,
			Closer:         n.Closer,
			SelfGenerated:  n.SelfGenerated,
			BonusThreshold: threshold,
			BonusStep:      step,
			BonusPoints:    n.BonusPoints,
		}
	}
	for _, tier := range f.SessionTiers {
		t.SessionTiers = append(t.SessionTiers, SessionTier{MinScore: tier.MinScore, Points: tier.Points})
	}
	if err := t.Validate(); err != nil {
		return PointTable{}, err
	}
	return t, nil
}
