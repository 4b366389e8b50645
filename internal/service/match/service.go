// Package match owns the fixture lifecycle after creation: status
// advancement, live score updates, and applying the final result to the
// team counters exactly once.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clubdeck/api/internal/domain"
	"github.com/clubdeck/api/internal/identity"
	"github.com/clubdeck/api/internal/store"
	"github.com/clubdeck/api/internal/ws"
)

var (
	// ErrMatchNotFound reports a reference to a fixture that does not exist.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchCompleted rejects advancing a fixture past its terminal state.
	ErrMatchCompleted = errors.New("match already completed")
	// ErrMatchNotLive rejects score updates outside the live stage.
	ErrMatchNotLive = errors.New("match is not live")
	// ErrNegativeScore rejects scores below zero.
	ErrNegativeScore = errors.New("score must not be negative")
)

// Service advances fixtures through their lifecycle.
type Service struct {
	store  store.Store
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs a Service. The hub may be nil when no live consumers
// are wired.
func New(s store.Store, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{store: s, hub: hub, logger: logger}
}

// List returns the identity's fixtures in stored order.
func (s Service) List(ctx context.Context, id identity.Key) ([]domain.Match, error) {
	matches, err := store.Load[domain.Match](ctx, s.store, store.CollectionKey(domain.ResourceMatch, id), s.logger)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	return matches, nil
}

// SetScore updates the running score of a live fixture.
func (s Service) SetScore(ctx context.Context, id identity.Key, matchID uuid.UUID, home, away int) (*domain.Match, error) {
	if home < 0 || away < 0 {
		return nil, ErrNegativeScore
	}
	key := store.CollectionKey(domain.ResourceMatch, id)
	matches, err := store.Load[domain.Match](ctx, s.store, key, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	idx := indexOfMatch(matches, matchID)
	if idx < 0 {
		return nil, ErrMatchNotFound
	}
	if matches[idx].Status != domain.MatchLive {
		return nil, ErrMatchNotLive
	}

	updated := append([]domain.Match(nil), matches...)
	updated[idx].HomeScore = home
	updated[idx].AwayScore = away
	if err := store.Save(ctx, s.store, key, updated); err != nil {
		return nil, fmt.Errorf("persist matches: %w", err)
	}

	s.notify(id, "match.score", matchID)
	return &updated[idx], nil
}

// Advance moves a fixture to its next lifecycle stage. The transition
// into completed applies the result to both team counter sets in the
// same call; ResultApplied guards against applying it twice.
func (s Service) Advance(ctx context.Context, id identity.Key, matchID uuid.UUID) (*domain.Match, error) {
	matchesKey := store.CollectionKey(domain.ResourceMatch, id)
	matches, err := store.Load[domain.Match](ctx, s.store, matchesKey, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	idx := indexOfMatch(matches, matchID)
	if idx < 0 {
		return nil, ErrMatchNotFound
	}

	next, ok := matches[idx].Status.Next()
	if !ok {
		return nil, ErrMatchCompleted
	}

	updated := append([]domain.Match(nil), matches...)
	updated[idx].Status = next

	var teamsSnapshot []domain.Team
	if next == domain.MatchCompleted && !updated[idx].ResultApplied {
		snapshot, err := s.applyResult(ctx, id, updated[idx])
		if err != nil {
			return nil, err
		}
		teamsSnapshot = snapshot
		updated[idx].ResultApplied = true
	}
	if err := store.Save(ctx, s.store, matchesKey, updated); err != nil {
		if teamsSnapshot != nil {
			teamsKey := store.CollectionKey(domain.ResourceTeam, id)
			if restoreErr := store.Save(ctx, s.store, teamsKey, teamsSnapshot); restoreErr != nil {
				s.logger.Error("team counter rollback failed", "identity", id.String(), "error", restoreErr)
			}
		}
		return nil, fmt.Errorf("persist matches: %w", err)
	}

	s.notify(id, "match."+string(next), matchID)
	s.logger.Info("match advanced", "identity", id.String(), "match_id", matchID, "status", string(next))
	return &updated[idx], nil
}

// applyResult folds the final score into both teams: each gains a
// played match plus exactly one of win, loss, or draw, keeping the
// matches counter equal to wins+losses+draws. It returns the
// pre-mutation team snapshot so the caller can roll back.
func (s Service) applyResult(ctx context.Context, id identity.Key, m domain.Match) ([]domain.Team, error) {
	teamsKey := store.CollectionKey(domain.ResourceTeam, id)
	teams, err := store.Load[domain.Team](ctx, s.store, teamsKey, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	homeIdx := indexOfTeam(teams, m.HomeTeamID)
	awayIdx := indexOfTeam(teams, m.AwayTeamID)
	if homeIdx < 0 || awayIdx < 0 {
		return nil, fmt.Errorf("apply result for match %s: %w", m.ID, errors.New("team collection out of sync"))
	}

	updated := append([]domain.Team(nil), teams...)
	updated[homeIdx].Matches++
	updated[awayIdx].Matches++
	switch {
	case m.HomeScore > m.AwayScore:
		updated[homeIdx].Wins++
		updated[awayIdx].Losses++
	case m.HomeScore < m.AwayScore:
		updated[homeIdx].Losses++
		updated[awayIdx].Wins++
	default:
		updated[homeIdx].Draws++
		updated[awayIdx].Draws++
	}
	if err := store.Save(ctx, s.store, teamsKey, updated); err != nil {
		return nil, fmt.Errorf("persist teams: %w", err)
	}
	return teams, nil
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

func indexOfMatch(matches []domain.Match, id uuid.UUID) int {
	for i := range matches {
		if matches[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfTeam(teams []domain.Team, id uuid.UUID) int {
	for i := range teams {
		if teams[i].ID == id {
			return i
		}
	}
	return -1
}
