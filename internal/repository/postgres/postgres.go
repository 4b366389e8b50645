// Package postgres implements the persistence interfaces on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubdeck/api/internal/domain"
	"github.com/clubdeck/api/internal/identity"
	"github.com/clubdeck/api/internal/repository"
	"github.com/clubdeck/api/internal/store"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository = (*Repository)(nil)
	_ store.Store               = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, display_name, password_hash, plan_tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.PlanTier, user.CreatedAt)
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, display_name, password_hash, plan_tier, created_at FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, display_name, password_hash, plan_tier, created_at FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// UpdatePlanTier moves a user to a different subscription tier.
func (r *Repository) UpdatePlanTier(ctx context.Context, id, tier string) error {
	const query = `UPDATE users SET plan_tier = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, tier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces a user's password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// PlanTier resolves the tier for a quota identity.
func (r *Repository) PlanTier(ctx context.Context, id identity.Key) (string, error) {
	const query = `SELECT plan_tier FROM users WHERE id = $1`
	var tier string
	if err := r.pool.QueryRow(ctx, query, id.String()).Scan(&tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}
	return tier, nil
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.PlanTier, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Get reads a collection payload by key. A missing row is not an error;
// callers treat absence as an empty collection.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `SELECT payload FROM collections WHERE key = $1`
	var payload []byte
	if err := r.pool.QueryRow(ctx, query, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

// Set writes a collection payload, replacing any previous value.
func (r *Repository) Set(ctx context.Context, key string, payload []byte) error {
	const query = `INSERT INTO collections (key, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	_, err := r.pool.Exec(ctx, query, key, payload)
	return err
}
