package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clubdeck/api/internal/domain"
)

// DefaultTier is applied to identities without a subscription record.
const DefaultTier = "free"

// Limits maps resource kinds to creation limits. A negative limit means
// unlimited; a missing kind denies creation outright.
type Limits map[domain.ResourceKind]int

// Limit returns the configured limit for kind, defaulting to 0 (deny).
func (l Limits) Limit(kind domain.ResourceKind) int {
	limit, ok := l[kind]
	if !ok {
		return 0
	}
	return limit
}

// TierTable maps tier names to their per-kind limits.
type TierTable map[string]Limits

// LimitsFor resolves the limits for tier, falling back to fallback when
// the tier is unknown.
func (t TierTable) LimitsFor(tier, fallback string) Limits {
	if limits, ok := t[tier]; ok {
		return limits
	}
	return t[fallback]
}

// DefaultTiers is the compiled-in tier table used when no configuration
// file is supplied.
func DefaultTiers() TierTable {
	return TierTable{
		"free": {
			domain.ResourceTeam:   1,
			domain.ResourcePlayer: 15,
			domain.ResourceMatch:  10,
		},
		"pro": {
			domain.ResourceTeam:   10,
			domain.ResourcePlayer: 250,
			domain.ResourceMatch:  500,
		},
		"club": {
			domain.ResourceTeam:   -1,
			domain.ResourcePlayer: -1,
			domain.ResourceMatch:  -1,
		},
	}
}

// LoadTierTable reads a YAML tier table, e.g.:
//
//	free:
//	  team: 1
//	  player: 15
//	  match: 10
//
// An empty path returns the compiled-in defaults. The file must contain
// the default tier.
func LoadTierTable(path string) (TierTable, error) {
	if path == "" {
		return DefaultTiers(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier table: %w", err)
	}
	var parsed map[string]map[string]int
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse tier table: %w", err)
	}
	table := make(TierTable, len(parsed))
	for tier, kinds := range parsed {
		limits := make(Limits, len(kinds))
		for kind, limit := range kinds {
			limits[domain.ResourceKind(kind)] = limit
		}
		table[tier] = limits
	}
	if _, ok := table[DefaultTier]; !ok {
		return nil, fmt.Errorf("tier table missing default tier %q", DefaultTier)
	}
	return table, nil
}
