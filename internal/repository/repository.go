package repository

import (
	"context"

	"github.com/clubdeck/api/internal/domain"
)

// UserRepository persists platform accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePlanTier(ctx context.Context, id, tier string) error
	UpdatePassword(ctx context.Context, id string, hash []byte) error
}
