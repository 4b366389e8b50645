package stats

import (
	"testing"

	"github.com/google/uuid"

	"github.com/clubdeck/api/internal/domain"
)

func TestAggregateSumsEachFieldIndependently(t *testing.T) {
	teams := []domain.Team{
		{Players: 11, Matches: 5, Wins: 3, Losses: 1, Draws: 1},
		{Players: 14, Matches: 4, Wins: 2, Losses: 2, Draws: 0},
		{Players: 9},
	}

	got := Aggregate(teams)
	want := Totals{Players: 34, Matches: 9, Wins: 5, Losses: 3, Draws: 1}
	if got != want {
		t.Fatalf("Aggregate = %+v, want %+v", got, want)
	}
}

func TestAggregateEmptyCollection(t *testing.T) {
	if got := Aggregate(nil); got != (Totals{}) {
		t.Fatalf("Aggregate(nil) = %+v, want zero totals", got)
	}
}

func TestWinRate(t *testing.T) {
	tests := []struct {
		name   string
		totals Totals
		want   int
	}{
		{"no matches", Totals{}, 0},
		{"all wins", Totals{Wins: 4}, 100},
		{"all losses", Totals{Losses: 3}, 0},
		{"5 of 9 rounds to 56", Totals{Wins: 5, Losses: 3, Draws: 1}, 56},
		{"1 of 3 rounds to 33", Totals{Wins: 1, Losses: 2}, 33},
		{"half rounds up", Totals{Wins: 1, Losses: 1}, 50},
		{"1 of 8 rounds half up to 13", Totals{Wins: 1, Losses: 7}, 13},
		{"2 of 3 rounds to 67", Totals{Wins: 2, Draws: 1}, 67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WinRate(tt.totals); got != tt.want {
				t.Fatalf("WinRate(%+v) = %d, want %d", tt.totals, got, tt.want)
			}
		})
	}
}

func fixtures(statuses ...domain.MatchStatus) []domain.Match {
	matches := make([]domain.Match, 0, len(statuses))
	for i, status := range statuses {
		matches = append(matches, domain.Match{ID: uuid.New(), Status: status, HomeScore: i})
	}
	return matches
}

func TestUpcomingFiltersScheduledInStoredOrder(t *testing.T) {
	matches := fixtures(
		domain.MatchScheduled,
		domain.MatchCompleted,
		domain.MatchCompleted,
		domain.MatchScheduled,
		domain.MatchCompleted,
	)

	got := Upcoming(matches)
	if len(got) != 2 {
		t.Fatalf("expected 2 upcoming matches, got %d", len(got))
	}
	if got[0].ID != matches[0].ID || got[1].ID != matches[3].ID {
		t.Fatalf("upcoming matches out of stored order")
	}

	recent := Recent(matches)
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent matches, got %d", len(recent))
	}
	if recent[0].ID != matches[1].ID || recent[1].ID != matches[2].ID || recent[2].ID != matches[4].ID {
		t.Fatalf("recent matches out of stored order")
	}
}

func TestUpcomingCapsAtThree(t *testing.T) {
	matches := fixtures(
		domain.MatchScheduled,
		domain.MatchScheduled,
		domain.MatchScheduled,
		domain.MatchScheduled,
	)
	got := Upcoming(matches)
	if len(got) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(got))
	}
	for i := range got {
		if got[i].ID != matches[i].ID {
			t.Fatalf("cap must keep the first entries in order")
		}
	}
}

func TestRecentCapsAtFive(t *testing.T) {
	statuses := make([]domain.MatchStatus, 7)
	for i := range statuses {
		statuses[i] = domain.MatchCompleted
	}
	got := Recent(fixtures(statuses...))
	if len(got) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(got))
	}
}

func TestLiveMatchesAppearInNeitherView(t *testing.T) {
	matches := fixtures(domain.MatchLive, domain.MatchLive)
	if len(Upcoming(matches)) != 0 || len(Recent(matches)) != 0 {
		t.Fatalf("live matches must not appear in upcoming or recent views")
	}
}
