// Package plan gates creation of plan-limited resources against the
// subscription tier table and tracks per-identity usage counters.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clubdeck/api/internal/domain"
	"github.com/clubdeck/api/internal/identity"
	"github.com/clubdeck/api/internal/repository"
	"github.com/clubdeck/api/internal/store"
)

// TierSource resolves the plan tier an identity is subscribed to.
type TierSource interface {
	PlanTier(ctx context.Context, id identity.Key) (string, error)
}

// Engine decides whether plan-limited resources may be created.
type Engine struct {
	store       store.Store
	tiers       TierTable
	tierOf      TierSource
	defaultTier string
	logger      *slog.Logger
}

// NewEngine constructs an Engine over the given tier table. Identities
// the source cannot resolve fall back to the most restrictive tier.
func NewEngine(s store.Store, tiers TierTable, tierOf TierSource, logger *slog.Logger) *Engine {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	return &Engine{
		store:       s,
		tiers:       tiers,
		tierOf:      tierOf,
		defaultTier: DefaultTier,
		logger:      logger,
	}
}

var errIdentityRequired = errors.New("identity is required")

// Summary is the full subscription picture for one identity.
type Summary struct {
	Identity string       `json:"identity"`
	Tier     string       `json:"tier"`
	Limits   Limits       `json:"limits"`
	Usage    domain.Usage `json:"usage"`
}

// CanCreateResource reports whether the identity may create one more
// resource of the given kind. It is a pure read of current state.
func (e *Engine) CanCreateResource(ctx context.Context, id identity.Key, kind domain.ResourceKind) (bool, error) {
	if id.Zero() {
		return false, errIdentityRequired
	}
	limit := e.limitsFor(ctx, id).Limit(kind)
	if limit < 0 {
		return true, nil
	}
	usage, err := e.usageFor(ctx, id)
	if err != nil {
		return false, err
	}
	return usage.Count(kind) < limit, nil
}

// UpdateUsageStats merges the supplied counters into the identity's
// usage record. Only the given kinds are overwritten; the write is a
// last-write-wins set, so repeating it never double counts.
func (e *Engine) UpdateUsageStats(ctx context.Context, id identity.Key, counters map[domain.ResourceKind]int) error {
	if id.Zero() {
		return errIdentityRequired
	}
	records, err := store.Load[domain.Usage](ctx, e.store, store.UsageKey(id), e.logger)
	if err != nil {
		return fmt.Errorf("load usage record: %w", err)
	}
	var usage domain.Usage
	if len(records) > 0 {
		usage = records[0]
	}
	for kind, value := range counters {
		usage.SetCount(kind, value)
	}
	if err := store.Save(ctx, e.store, store.UsageKey(id), []domain.Usage{usage}); err != nil {
		return fmt.Errorf("save usage record: %w", err)
	}
	return nil
}

// GetSubscriptionSummary returns tier, limits, and usage. The usage it
// reports reflects the most recent update in this process.
func (e *Engine) GetSubscriptionSummary(ctx context.Context, id identity.Key) (*Summary, error) {
	if id.Zero() {
		return nil, errIdentityRequired
	}
	usage, err := e.usageFor(ctx, id)
	if err != nil {
		return nil, err
	}
	tier := e.tierFor(ctx, id)
	return &Summary{
		Identity: id.String(),
		Tier:     tier,
		Limits:   e.tiers.LimitsFor(tier, e.defaultTier),
		Usage:    usage,
	}, nil
}

func (e *Engine) limitsFor(ctx context.Context, id identity.Key) Limits {
	return e.tiers.LimitsFor(e.tierFor(ctx, id), e.defaultTier)
}

func (e *Engine) tierFor(ctx context.Context, id identity.Key) string {
	if e.tierOf == nil {
		return e.defaultTier
	}
	tier, err := e.tierOf.PlanTier(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.Warn("tier lookup failed, using default tier", "identity", id.String(), "error", err)
		}
		return e.defaultTier
	}
	if _, ok := e.tiers[tier]; !ok {
		return e.defaultTier
	}
	return tier
}

// usageFor derives counters from the authoritative collection lengths,
// falling back to the stored record for kinds whose collection cannot
// be read. Deriving removes the dual-write hazard between collections
// and counters.
func (e *Engine) usageFor(ctx context.Context, id identity.Key) (domain.Usage, error) {
	records, err := store.Load[domain.Usage](ctx, e.store, store.UsageKey(id), e.logger)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("load usage record: %w", err)
	}
	var usage domain.Usage
	if len(records) > 0 {
		usage = records[0]
	}
	for _, kind := range domain.ResourceKinds {
		n, found, err := store.Count(ctx, e.store, store.CollectionKey(kind, id), e.logger)
		if err != nil {
			return domain.Usage{}, fmt.Errorf("derive %s usage: %w", kind, err)
		}
		if found {
			usage.SetCount(kind, n)
		}
	}
	return usage, nil
}
