package dashboard

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
	"github.com/clubdeck/api/internal/service/plan"
	"github.com/clubdeck/api/internal/store"
)

type staticTierSource string

func (s staticTierSource) PlanTier(ctx context.Context, id identity.Key) (string, error) {
	return string(s), nil
}

// flakyStore wraps a working store and fails selected operations.
type flakyStore struct {
	inner       store.Store
	failGet     bool
	failSetKeys map[string]bool
}

var errStoreDown = errors.New("store unavailable")

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errStoreDown
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, payload []byte) error {
	if f.failSetKeys[key] {
		return errStoreDown
	}
	return f.inner.Set(ctx, key, payload)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(backing store.Store, tier string) Service {
	logger := testLogger()
	plans := plan.NewEngine(backing, plan.DefaultTiers(), staticTierSource(tier), logger)
	return New(backing, plans, nil, logger)
}

func kickoff() time.Time {
	return time.Date(2026, time.September, 5, 15, 0, 0, 0, time.UTC)
}

func TestCreateTeamQuotaScenario(t *testing.T) {
	// Free tier allows exactly one team.
	mem := store.NewMemoryStore()
	svc := newTestService(mem, "free")
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	view, err := svc.View(ctx, id)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !view.CanCreate[domain.ResourceTeam] {
		t.Fatalf("fresh free identity should be allowed a first team")
	}

	team, err := svc.CreateTeam(ctx, id, "Eagles")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if team.Name != "Eagles" {
		t.Fatalf("unexpected team name %q", team.Name)
	}
	if team.Players != 0 || team.Matches != 0 || team.Wins != 0 || team.Losses != 0 || team.Draws != 0 {
		t.Fatalf("new team counters must be zero: %+v", team)
	}

	if _, err := svc.CreateTeam(ctx, id, "Hawks"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("second team on free tier should be denied, got %v", err)
	}

	teams, err := store.Load[domain.Team](ctx, mem, store.CollectionKey(domain.ResourceTeam, id), testLogger())
	if err != nil {
		t.Fatalf("load teams: %v", err)
	}
	if len(teams) != 1 || teams[0].Name != "Eagles" {
		t.Fatalf("denied create must not mutate the collection: %+v", teams)
	}
}

func TestCreateTeamBlankNameIsRejectedWithoutMutation(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, "pro")
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\t\n"} {
		if _, err := svc.CreateTeam(ctx, id, name); !errors.Is(err, ErrInvalidTeamName) {
			t.Fatalf("CreateTeam(%q) = %v, want ErrInvalidTeamName", name, err)
		}
	}

	teams, err := store.Load[domain.Team](ctx, mem, store.CollectionKey(domain.ResourceTeam, id), testLogger())
	if err != nil {
		t.Fatalf("load teams: %v", err)
	}
	if len(teams) != 0 {
		t.Fatalf("rejected creates must not mutate the collection")
	}
	if _, found, err := mem.Get(ctx, store.UsageKey(id)); err != nil || found {
		t.Fatalf("rejected creates must not touch usage counters (found=%v err=%v)", found, err)
	}
}

func TestCreateTeamPersistFailureLeavesStateUntouched(t *testing.T) {
	mem := store.NewMemoryStore()
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	seeded := newTestService(mem, "pro")
	if _, err := seeded.CreateTeam(ctx, id, "Eagles"); err != nil {
		t.Fatalf("seed CreateTeam: %v", err)
	}

	teamsKey := store.CollectionKey(domain.ResourceTeam, id)
	flaky := &flakyStore{inner: mem, failSetKeys: map[string]bool{teamsKey: true}}
	svc := newTestService(flaky, "pro")

	if _, err := svc.CreateTeam(ctx, id, "Hawks"); err == nil {
		t.Fatalf("expected persist failure to surface")
	}

	teams, err := store.Load[domain.Team](ctx, mem, teamsKey, testLogger())
	if err != nil {
		t.Fatalf("load teams: %v", err)
	}
	if len(teams) != 1 || teams[0].Name != "Eagles" {
		t.Fatalf("failed persist must leave the stored collection at its snapshot: %+v", teams)
	}
}

func TestViewDegradesToEmptyWhenStoreUnreadable(t *testing.T) {
	flaky := &flakyStore{inner: store.NewMemoryStore(), failGet: true}
	svc := newTestService(flaky, "free")

	view, err := svc.View(context.Background(), identity.FromUserID("user-1"))
	if err != nil {
		t.Fatalf("View must absorb read failures, got %v", err)
	}
	if len(view.Teams) != 0 || view.WinRate != 0 {
		t.Fatalf("unreadable store must yield an empty view: %+v", view)
	}
	for _, kind := range domain.ResourceKinds {
		if view.CanCreate[kind] {
			t.Fatalf("quota flags must fail closed when the store is unreadable")
		}
	}
}

func TestViewAggregatesAndFiltersMatches(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, "club")
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	teams := []domain.Team{
		{ID: uuid.New(), Name: "Eagles", Players: 11, Matches: 5, Wins: 3, Losses: 1, Draws: 1},
		{ID: uuid.New(), Name: "Hawks", Players: 10, Matches: 4, Wins: 2, Losses: 2, Draws: 0},
	}
	if err := store.Save(ctx, mem, store.CollectionKey(domain.ResourceTeam, id), teams); err != nil {
		t.Fatalf("seed teams: %v", err)
	}
	matches := []domain.Match{
		{ID: uuid.New(), Status: domain.MatchScheduled},
		{ID: uuid.New(), Status: domain.MatchCompleted},
		{ID: uuid.New(), Status: domain.MatchCompleted},
		{ID: uuid.New(), Status: domain.MatchScheduled},
		{ID: uuid.New(), Status: domain.MatchCompleted},
	}
	if err := store.Save(ctx, mem, store.CollectionKey(domain.ResourceMatch, id), matches); err != nil {
		t.Fatalf("seed matches: %v", err)
	}

	view, err := svc.View(ctx, id)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.Totals.Wins != 5 || view.Totals.Losses != 3 || view.Totals.Draws != 1 {
		t.Fatalf("unexpected totals %+v", view.Totals)
	}
	if view.WinRate != 56 {
		t.Fatalf("expected win rate 56, got %d", view.WinRate)
	}
	if len(view.Upcoming) != 2 || view.Upcoming[0].ID != matches[0].ID || view.Upcoming[1].ID != matches[3].ID {
		t.Fatalf("unexpected upcoming view")
	}
	if len(view.Recent) != 3 {
		t.Fatalf("expected 3 recent matches, got %d", len(view.Recent))
	}
}

func TestCreateMatchValidatesTeamReferences(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, "club")
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	home, err := svc.CreateTeam(ctx, id, "Eagles")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	if _, err := svc.CreateMatch(ctx, id, MatchInput{HomeTeamID: home.ID, AwayTeamID: home.ID, KickoffAt: kickoff()}); !errors.Is(err, ErrSameTeam) {
		t.Fatalf("expected ErrSameTeam, got %v", err)
	}
	if _, err := svc.CreateMatch(ctx, id, MatchInput{HomeTeamID: home.ID, AwayTeamID: uuid.New(), KickoffAt: kickoff()}); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound, got %v", err)
	}

	away, err := svc.CreateTeam(ctx, id, "Hawks")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if _, err := svc.CreateMatch(ctx, id, MatchInput{HomeTeamID: home.ID, AwayTeamID: away.ID}); !errors.Is(err, ErrKickoffRequired) {
		t.Fatalf("expected ErrKickoffRequired, got %v", err)
	}

	match, err := svc.CreateMatch(ctx, id, MatchInput{HomeTeamID: home.ID, AwayTeamID: away.ID, KickoffAt: kickoff()})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if match.Status != domain.MatchScheduled {
		t.Fatalf("new match must start scheduled, got %s", match.Status)
	}
}

func TestCreatePlayerBumpsTeamRoster(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, "club")
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	team, err := svc.CreateTeam(ctx, id, "Eagles")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	player, err := svc.CreatePlayer(ctx, id, PlayerInput{TeamID: team.ID, Name: "Sam Reyes", Position: "GK", Number: 1})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if player.TeamID != team.ID {
		t.Fatalf("player not linked to team")
	}

	teams, err := store.Load[domain.Team](ctx, mem, store.CollectionKey(domain.ResourceTeam, id), testLogger())
	if err != nil {
		t.Fatalf("load teams: %v", err)
	}
	if teams[0].Players != 1 {
		t.Fatalf("expected roster counter 1, got %d", teams[0].Players)
	}
}

func TestCreatePlayerRollsBackWhenTeamCounterPersistFails(t *testing.T) {
	mem := store.NewMemoryStore()
	id := identity.FromUserID("user-1")
	ctx := context.Background()

	seeded := newTestService(mem, "club")
	team, err := seeded.CreateTeam(ctx, id, "Eagles")
	if err != nil {
		t.Fatalf("seed CreateTeam: %v", err)
	}

	teamsKey := store.CollectionKey(domain.ResourceTeam, id)
	flaky := &flakyStore{inner: mem, failSetKeys: map[string]bool{teamsKey: true}}
	svc := newTestService(flaky, "club")

	if _, err := svc.CreatePlayer(ctx, id, PlayerInput{TeamID: team.ID, Name: "Sam Reyes"}); err == nil {
		t.Fatalf("expected persist failure to surface")
	}

	players, err := store.Load[domain.Player](ctx, mem, store.CollectionKey(domain.ResourcePlayer, id), testLogger())
	if err != nil {
		t.Fatalf("load players: %v", err)
	}
	if len(players) != 0 {
		t.Fatalf("player append must be rolled back, found %d players", len(players))
	}
}
