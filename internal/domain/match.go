package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus enumerates the lifecycle of a fixture.
type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchLive      MatchStatus = "live"
	MatchCompleted MatchStatus = "completed"
)

// Valid reports whether the status is one of the known values.
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchScheduled, MatchLive, MatchCompleted:
		return true
	}
	return false
}

// Next returns the following lifecycle stage. Completed is terminal.
func (s MatchStatus) Next() (MatchStatus, bool) {
	switch s {
	case MatchScheduled:
		return MatchLive, true
	case MatchLive:
		return MatchCompleted, true
	}
	return s, false
}

// Match is a fixture between two teams referenced by identity, never by
// display name.
type Match struct {
	ID            uuid.UUID   `json:"id"`
	HomeTeamID    uuid.UUID   `json:"home_team_id"`
	AwayTeamID    uuid.UUID   `json:"away_team_id"`
	HomeScore     int         `json:"home_score"`
	AwayScore     int         `json:"away_score"`
	KickoffAt     time.Time   `json:"kickoff_at"`
	Status        MatchStatus `json:"status"`
	ResultApplied bool        `json:"result_applied"`
	CreatedAt     time.Time   `json:"created_at"`
}
