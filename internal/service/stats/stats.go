// Package stats derives roll-up numbers from the team collection and
// filters match views for display. Everything here is a pure function;
// callers recompute on demand instead of caching.
package stats

import "github.com/clubdeck/api/internal/domain"

const (
	upcomingLimit = 3
	recentLimit   = 5
)

// Totals is the aggregate over all teams. It has no independent
// lifecycle; it is a function of the collection it was computed from.
type Totals struct {
	Players int `json:"players"`
	Matches int `json:"matches"`
	Wins    int `json:"wins"`
	Losses  int `json:"losses"`
	Draws   int `json:"draws"`
}

// Aggregate sums each counter independently across the collection.
func Aggregate(teams []domain.Team) Totals {
	var t Totals
	for _, team := range teams {
		t.Players += team.Players
		t.Matches += team.Matches
		t.Wins += team.Wins
		t.Losses += team.Losses
		t.Draws += team.Draws
	}
	return t
}

// WinRate returns the win percentage rounded half-up to a whole
// percent. Zero decided matches is a defined boundary returning 0.
func WinRate(t Totals) int {
	total := t.Wins + t.Losses + t.Draws
	if total == 0 {
		return 0
	}
	return (200*t.Wins + total) / (2 * total)
}

// Upcoming returns the first scheduled matches in stored order.
func Upcoming(matches []domain.Match) []domain.Match {
	return filterByStatus(matches, domain.MatchScheduled, upcomingLimit)
}

// Recent returns the first completed matches in stored order.
func Recent(matches []domain.Match) []domain.Match {
	return filterByStatus(matches, domain.MatchCompleted, recentLimit)
}

func filterByStatus(matches []domain.Match, status domain.MatchStatus, limit int) []domain.Match {
	out := make([]domain.Match, 0, limit)
	for _, m := range matches {
		if m.Status != status {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out
}
