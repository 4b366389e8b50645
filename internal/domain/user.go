package domain

import "time"

// User represents a platform account. PlanTier decides the resource
// quotas the policy engine enforces for everything the user creates.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash []byte
	PlanTier     string
	CreatedAt    time.Time
}
