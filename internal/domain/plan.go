package domain

// ResourceKind is a category of plan-limited entity.
type ResourceKind string

const (
	ResourceTeam   ResourceKind = "team"
	ResourcePlayer ResourceKind = "player"
	ResourceMatch  ResourceKind = "match"
)

// ResourceKinds lists every plan-limited kind in a stable order.
var ResourceKinds = []ResourceKind{ResourceTeam, ResourcePlayer, ResourceMatch}

// Usage holds per-identity creation counters. Updates are last-write-wins
// sets, never increments, so replaying the same update is harmless.
type Usage struct {
	TeamsCreated   int `json:"teams_created"`
	PlayersCreated int `json:"players_created"`
	MatchesCreated int `json:"matches_created"`
}

// Count returns the counter for the given kind.
func (u Usage) Count(kind ResourceKind) int {
	switch kind {
	case ResourceTeam:
		return u.TeamsCreated
	case ResourcePlayer:
		return u.PlayersCreated
	case ResourceMatch:
		return u.MatchesCreated
	}
	return 0
}

// SetCount overwrites the counter for the given kind.
func (u *Usage) SetCount(kind ResourceKind, value int) {
	switch kind {
	case ResourceTeam:
		u.TeamsCreated = value
	case ResourcePlayer:
		u.PlayersCreated = value
	case ResourceMatch:
		u.MatchesCreated = value
	}
}
