package domain

import (
	"time"

	"github.com/google/uuid"
)

// Player belongs to exactly one team.
type Player struct {
	ID        uuid.UUID `json:"id"`
	TeamID    uuid.UUID `json:"team_id"`
	Name      string    `json:"name"`
	Position  string    `json:"position,omitempty"`
	Number    int       `json:"number,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
