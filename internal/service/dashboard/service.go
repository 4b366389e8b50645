// Package dashboard orchestrates the persisted collections, the quota
// engine, and the aggregator into the view models the UI consumes.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clubdeck/api/internal/domain"
	"github.com/clubdeck/api/internal/identity"
	"github.com/clubdeck/api/internal/service/plan"
	"github.com/clubdeck/api/internal/service/stats"
	"github.com/clubdeck/api/internal/store"
	"github.com/clubdeck/api/internal/ws"
)

var (
	// ErrInvalidTeamName rejects empty or whitespace-only team names.
	ErrInvalidTeamName = errors.New("team name is required")
	// ErrInvalidPlayerName rejects empty or whitespace-only player names.
	ErrInvalidPlayerName = errors.New("player name is required")
	// ErrQuotaExceeded rejects creation past the plan limit.
	ErrQuotaExceeded = errors.New("plan quota exceeded")
	// ErrTeamNotFound reports a reference to a team that does not exist.
	ErrTeamNotFound = errors.New("team not found")
	// ErrSameTeam rejects a match where a team plays itself.
	ErrSameTeam = errors.New("home and away teams must differ")
	// ErrKickoffRequired rejects a match without a scheduled time.
	ErrKickoffRequired = errors.New("kickoff time is required")
)

// Service is the dashboard controller. It is the only writer of the
// team, player, and match collections.
type Service struct {
	store  store.Store
	plans  *plan.Engine
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs a Service. The hub may be nil when no live consumers
// are wired.
func New(s store.Store, plans *plan.Engine, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{store: s, plans: plans, hub: hub, logger: logger}
}

// View is the read-only model the UI renders. Derived values are
// recomputed on every call, never cached across mutations.
type View struct {
	Teams     []domain.Team                `json:"teams"`
	Totals    stats.Totals                 `json:"totals"`
	WinRate   int                          `json:"win_rate"`
	Upcoming  []domain.Match               `json:"upcoming"`
	Recent    []domain.Match               `json:"recent"`
	CanCreate map[domain.ResourceKind]bool `json:"can_create"`
}

// View loads the identity's collections and derives the dashboard
// model. Store read failures degrade to empty collections so the
// dashboard stays usable read-only.
func (s Service) View(ctx context.Context, id identity.Key) (*View, error) {
	teams := s.loadTeams(ctx, id)
	matches := s.loadMatches(ctx, id)

	totals := stats.Aggregate(teams)
	canCreate := make(map[domain.ResourceKind]bool, len(domain.ResourceKinds))
	for _, kind := range domain.ResourceKinds {
		ok, err := s.plans.CanCreateResource(ctx, id, kind)
		if err != nil {
			s.logger.Warn("quota check failed", "identity", id.String(), "kind", string(kind), "error", err)
			ok = false
		}
		canCreate[kind] = ok
	}

	return &View{
		Teams:     teams,
		Totals:    totals,
		WinRate:   stats.WinRate(totals),
		Upcoming:  stats.Upcoming(matches),
		Recent:    stats.Recent(matches),
		CanCreate: canCreate,
	}, nil
}

// Refresh reloads collections and recomputes the view.
func (s Service) Refresh(ctx context.Context, id identity.Key) (*View, error) {
	return s.View(ctx, id)
}

// CreateTeam appends a zero-counter team after validation and the quota
// gate. A failed persist leaves the stored collection untouched; no
// partial state survives.
func (s Service) CreateTeam(ctx context.Context, id identity.Key, name string) (*domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTeamName
	}
	if err := s.gate(ctx, id, domain.ResourceTeam); err != nil {
		return nil, err
	}

	key := store.CollectionKey(domain.ResourceTeam, id)
	teams, err := store.Load[domain.Team](ctx, s.store, key, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}

	team := domain.Team{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	updated := append(append([]domain.Team(nil), teams...), team)
	if err := store.Save(ctx, s.store, key, updated); err != nil {
		return nil, fmt.Errorf("persist teams: %w", err)
	}

	s.recordUsage(ctx, id, domain.ResourceTeam, len(updated))
	s.notify(id, "team.created", team.ID)
	s.logger.Info("team created", "identity", id.String(), "team_id", team.ID, "name", name)
	return &team, nil
}

// PlayerInput describes a create-player request.
type PlayerInput struct {
	TeamID   uuid.UUID `json:"team_id"`
	Name     string    `json:"name"`
	Position string    `json:"position"`
	Number   int       `json:"number"`
}

// CreatePlayer appends a player and bumps the owning team's roster
// counter. If the team counter cannot be persisted the player append is
// rolled back to its pre-mutation snapshot.
func (s Service) CreatePlayer(ctx context.Context, id identity.Key, input PlayerInput) (*domain.Player, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrInvalidPlayerName
	}

	teamsKey := store.CollectionKey(domain.ResourceTeam, id)
	teams, err := store.Load[domain.Team](ctx, s.store, teamsKey, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	teamIdx := indexOfTeam(teams, input.TeamID)
	if teamIdx < 0 {
		return nil, ErrTeamNotFound
	}
	if err := s.gate(ctx, id, domain.ResourcePlayer); err != nil {
		return nil, err
	}

	playersKey := store.CollectionKey(domain.ResourcePlayer, id)
	players, err := store.Load[domain.Player](ctx, s.store, playersKey, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}

	player := domain.Player{
		ID:        uuid.New(),
		TeamID:    input.TeamID,
		Name:      input.Name,
		Position:  input.Position,
		Number:    input.Number,
		CreatedAt: time.Now().UTC(),
	}
	snapshot := append([]domain.Player(nil), players...)
	updatedPlayers := append(append([]domain.Player(nil), players...), player)
	if err := store.Save(ctx, s.store, playersKey, updatedPlayers); err != nil {
		return nil, fmt.Errorf("persist players: %w", err)
	}

	updatedTeams := append([]domain.Team(nil), teams...)
	updatedTeams[teamIdx].Players++
	if err := store.Save(ctx, s.store, teamsKey, updatedTeams); err != nil {
		if restoreErr := store.Save(ctx, s.store, playersKey, snapshot); restoreErr != nil {
			s.logger.Error("player rollback failed", "identity", id.String(), "error", restoreErr)
		}
		return nil, fmt.Errorf("persist teams: %w", err)
	}

	s.recordUsage(ctx, id, domain.ResourcePlayer, len(updatedPlayers))
	s.notify(id, "player.created", player.ID)
	s.logger.Info("player created", "identity", id.String(), "player_id", player.ID, "team_id", player.TeamID)
	return &player, nil
}

// MatchInput describes a create-match request. Teams are referenced by
// identity, never by display name.
type MatchInput struct {
	HomeTeamID uuid.UUID `json:"home_team_id"`
	AwayTeamID uuid.UUID `json:"away_team_id"`
	KickoffAt  time.Time `json:"kickoff_at"`
}

// CreateMatch appends a scheduled match. Team match counters are not
// touched here; they advance together with the win/loss/draw counters
// when the match completes.
func (s Service) CreateMatch(ctx context.Context, id identity.Key, input MatchInput) (*domain.Match, error) {
	if input.HomeTeamID == input.AwayTeamID {
		return nil, ErrSameTeam
	}
	if input.KickoffAt.IsZero() {
		return nil, ErrKickoffRequired
	}

	teams, err := store.Load[domain.Team](ctx, s.store, store.CollectionKey(domain.ResourceTeam, id), s.logger)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	if indexOfTeam(teams, input.HomeTeamID) < 0 || indexOfTeam(teams, input.AwayTeamID) < 0 {
		return nil, ErrTeamNotFound
	}
	if err := s.gate(ctx, id, domain.ResourceMatch); err != nil {
		return nil, err
	}

	matchesKey := store.CollectionKey(domain.ResourceMatch, id)
	matches, err := store.Load[domain.Match](ctx, s.store, matchesKey, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	match := domain.Match{
		ID:         uuid.New(),
		HomeTeamID: input.HomeTeamID,
		AwayTeamID: input.AwayTeamID,
		KickoffAt:  input.KickoffAt.UTC(),
		Status:     domain.MatchScheduled,
		CreatedAt:  time.Now().UTC(),
	}
	updated := append(append([]domain.Match(nil), matches...), match)
	if err := store.Save(ctx, s.store, matchesKey, updated); err != nil {
		return nil, fmt.Errorf("persist matches: %w", err)
	}

	s.recordUsage(ctx, id, domain.ResourceMatch, len(updated))
	s.notify(id, "match.created", match.ID)
	s.logger.Info("match created", "identity", id.String(), "match_id", match.ID)
	return &match, nil
}

// gate asks the policy engine for authorization and wraps denials.
func (s Service) gate(ctx context.Context, id identity.Key, kind domain.ResourceKind) error {
	ok, err := s.plans.CanCreateResource(ctx, id, kind)
	if err != nil {
		return fmt.Errorf("quota check for %s: %w", kind, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s limit reached", ErrQuotaExceeded, kind)
	}
	return nil
}

// recordUsage sets the counter to the authoritative collection length.
// Failures are logged only: reads derive the counter from the
// collection anyway, so a missed write cannot skew quota decisions.
func (s Service) recordUsage(ctx context.Context, id identity.Key, kind domain.ResourceKind, count int) {
	if err := s.plans.UpdateUsageStats(ctx, id, map[domain.ResourceKind]int{kind: count}); err != nil {
		s.logger.Warn("usage counter update failed", "identity", id.String(), "kind", string(kind), "error", err)
	}
}

func (s Service) loadTeams(ctx context.Context, id identity.Key) []domain.Team {
	teams, err := store.Load[domain.Team](ctx, s.store, store.CollectionKey(domain.ResourceTeam, id), s.logger)
	if err != nil {
		s.logger.Warn("team collection unavailable, serving empty view", "identity", id.String(), "error", err)
		return []domain.Team{}
	}
	return teams
}

func (s Service) loadMatches(ctx context.Context, id identity.Key) []domain.Match {
	matches, err := store.Load[domain.Match](ctx, s.store, store.CollectionKey(domain.ResourceMatch, id), s.logger)
	if err != nil {
		s.logger.Warn("match collection unavailable, serving empty view", "identity", id.String(), "error", err)
		return []domain.Match{}
	}
	return matches
}

func (s Service) notify(id identity.Key, event string, subject uuid.UUID) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"event": event, "id": subject.String()})
	if err != nil {
		return
	}
	s.hub.Broadcast(id.String(), payload)
}

func indexOfTeam(teams []domain.Team, id uuid.UUID) int {
	for i := range teams {
		if teams[i].ID == id {
			return i
		}
	}
	return -1
}
