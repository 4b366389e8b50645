package domain

import (
	"time"

	"github.com/google/uuid"
)

// Team represents a managed club roster with its running record.
// Matches is expected to equal Wins+Losses+Draws; the match completion
// path increments them together so the pair never drifts.
type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Players   int       `json:"players"`
	Matches   int       `json:"matches"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	CreatedAt time.Time `json:"created_at"`
}
