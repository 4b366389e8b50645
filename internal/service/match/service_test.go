package match

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clubdeck/api/internal/domain"
	"github.com/clubdeck/api/internal/identity"
	"github.com/clubdeck/api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store store.Store
	svc   Service
	id    identity.Key
	home  domain.Team
	away  domain.Team
	match domain.Match
}

// seed persists two teams and one scheduled fixture between them.
func seed(t *testing.T, backing store.Store) fixture {
	t.Helper()
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	home := domain.Team{ID: uuid.New(), Name: "Eagles"}
	away := domain.Team{ID: uuid.New(), Name: "Hawks"}
	if err := store.Save(ctx, backing, store.CollectionKey(domain.ResourceTeam, id), []domain.Team{home, away}); err != nil {
		t.Fatalf("seed teams: %v", err)
	}

	m := domain.Match{
		ID:         uuid.New(),
		HomeTeamID: home.ID,
		AwayTeamID: away.ID,
		KickoffAt:  time.Date(2026, time.September, 5, 15, 0, 0, 0, time.UTC),
		Status:     domain.MatchScheduled,
	}
	if err := store.Save(ctx, backing, store.CollectionKey(domain.ResourceMatch, id), []domain.Match{m}); err != nil {
		t.Fatalf("seed match: %v", err)
	}

	return fixture{store: backing, svc: New(backing, nil, testLogger()), id: id, home: home, away: away, match: m}
}

func (f fixture) loadTeams(t *testing.T) []domain.Team {
	t.Helper()
	teams, err := store.Load[domain.Team](context.Background(), f.store, store.CollectionKey(domain.ResourceTeam, f.id), testLogger())
	if err != nil {
		t.Fatalf("load teams: %v", err)
	}
	return teams
}

func TestAdvanceWalksTheLifecycle(t *testing.T) {
	f := seed(t, store.NewMemoryStore())
	ctx := context.Background()

	live, err := f.svc.Advance(ctx, f.id, f.match.ID)
	if err != nil {
		t.Fatalf("advance to live: %v", err)
	}
	if live.Status != domain.MatchLive {
		t.Fatalf("expected live, got %s", live.Status)
	}
	if teams := f.loadTeams(t); teams[0].Matches != 0 || teams[1].Matches != 0 {
		t.Fatalf("going live must not touch team counters")
	}

	done, err := f.svc.Advance(ctx, f.id, f.match.ID)
	if err != nil {
		t.Fatalf("advance to completed: %v", err)
	}
	if done.Status != domain.MatchCompleted || !done.ResultApplied {
		t.Fatalf("completed match must carry the result-applied mark: %+v", done)
	}

	if _, err := f.svc.Advance(ctx, f.id, f.match.ID); !errors.Is(err, ErrMatchCompleted) {
		t.Fatalf("completed is terminal, got %v", err)
	}
}

func TestAdvanceAppliesResultToBothTeams(t *testing.T) {
	tests := []struct {
		name  string
		home  int
		away  int
		check func(t *testing.T, home, away domain.Team)
	}{
		{"home win", 2, 1, func(t *testing.T, home, away domain.Team) {
			if home.Wins != 1 || away.Losses != 1 {
				t.Fatalf("home win not applied: home=%+v away=%+v", home, away)
			}
		}},
		{"away win", 0, 3, func(t *testing.T, home, away domain.Team) {
			if home.Losses != 1 || away.Wins != 1 {
				t.Fatalf("away win not applied: home=%+v away=%+v", home, away)
			}
		}},
		{"draw", 1, 1, func(t *testing.T, home, away domain.Team) {
			if home.Draws != 1 || away.Draws != 1 {
				t.Fatalf("draw not applied: home=%+v away=%+v", home, away)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := seed(t, store.NewMemoryStore())
			ctx := context.Background()

			if _, err := f.svc.Advance(ctx, f.id, f.match.ID); err != nil {
				t.Fatalf("advance to live: %v", err)
			}
			if _, err := f.svc.SetScore(ctx, f.id, f.match.ID, tt.home, tt.away); err != nil {
				t.Fatalf("SetScore: %v", err)
			}
			if _, err := f.svc.Advance(ctx, f.id, f.match.ID); err != nil {
				t.Fatalf("advance to completed: %v", err)
			}

			teams := f.loadTeams(t)
			for _, team := range teams {
				if team.Matches != 1 {
					t.Fatalf("each team must gain exactly one played match: %+v", team)
				}
				if team.Matches != team.Wins+team.Losses+team.Draws {
					t.Fatalf("matches must equal wins+losses+draws: %+v", team)
				}
			}
			tt.check(t, teams[0], teams[1])
		})
	}
}

func TestSetScoreRequiresLiveMatch(t *testing.T) {
	f := seed(t, store.NewMemoryStore())
	ctx := context.Background()

	if _, err := f.svc.SetScore(ctx, f.id, f.match.ID, 1, 0); !errors.Is(err, ErrMatchNotLive) {
		t.Fatalf("scheduled match must reject scores, got %v", err)
	}
	if _, err := f.svc.SetScore(ctx, f.id, f.match.ID, -1, 0); !errors.Is(err, ErrNegativeScore) {
		t.Fatalf("negative score must be rejected, got %v", err)
	}
	if _, err := f.svc.SetScore(ctx, f.id, uuid.New(), 1, 0); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("unknown match must be rejected, got %v", err)
	}
}

func TestAdvanceUnknownMatch(t *testing.T) {
	f := seed(t, store.NewMemoryStore())
	if _, err := f.svc.Advance(context.Background(), f.id, uuid.New()); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

// brokenStore fails writes to one key.
type brokenStore struct {
	inner   store.Store
	failKey string
}

func (b *brokenStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.inner.Get(ctx, key)
}

func (b *brokenStore) Set(ctx context.Context, key string, payload []byte) error {
	if key == b.failKey {
		return errors.New("store unavailable")
	}
	return b.inner.Set(ctx, key, payload)
}

func TestAdvanceRollsBackTeamCountersWhenMatchPersistFails(t *testing.T) {
	mem := store.NewMemoryStore()
	f := seed(t, mem)
	ctx := context.Background()

	if _, err := f.svc.Advance(ctx, f.id, f.match.ID); err != nil {
		t.Fatalf("advance to live: %v", err)
	}

	broken := &brokenStore{inner: mem, failKey: store.CollectionKey(domain.ResourceMatch, f.id)}
	svc := New(broken, nil, testLogger())
	if _, err := svc.Advance(ctx, f.id, f.match.ID); err == nil {
		t.Fatalf("expected persist failure to surface")
	}

	for _, team := range f.loadTeams(t) {
		if team.Matches != 0 || team.Wins != 0 || team.Losses != 0 || team.Draws != 0 {
			t.Fatalf("team counters must be rolled back when the match cannot persist: %+v", team)
		}
	}
}

func TestListReturnsStoredOrder(t *testing.T) {
	f := seed(t, store.NewMemoryStore())
	matches, err := f.svc.List(context.Background(), f.id)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != f.match.ID {
		t.Fatalf("unexpected listing: %+v", matches)
	}
}
