package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/clubdeck/api/internal/domain"
	"github.com/clubdeck/api/internal/repository"
	"github.com/clubdeck/api/internal/service/plan"
	"github.com/clubdeck/api/pkg/config"
	"github.com/clubdeck/api/pkg/crypto"
	jwtpkg "github.com/clubdeck/api/pkg/jwt"
)

var (
	// ErrInvalidEmail rejects malformed email addresses.
	ErrInvalidEmail = errors.New("a valid email is required")
	// ErrWeakPassword rejects passwords below the minimum length.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrResetTokenInvalid rejects expired or tampered reset tokens.
	ErrResetTokenInvalid = errors.New("reset token is invalid or expired")
)

const minPasswordLen = 8

// ResetSender delivers a password reset token to the account owner.
type ResetSender interface {
	SendReset(ctx context.Context, email, token string) error
}

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	resets ResetSender
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service. The reset sender may be nil when password
// recovery is not wired.
func New(users repository.UserRepository, resets ResetSender, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, resets: resets, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Signup registers a new user on the default plan tier.
func (s Service) Signup(ctx context.Context, email, displayName, password string) (*domain.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, TokenPair{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return nil, TokenPair{}, ErrWeakPassword
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		PlanTier:     plan.DefaultTier,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(user.ID, user.PlanTier)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "tier", user.PlanTier)
	return user, tokens, nil
}

// Login authenticates a user and returns tokens. Unknown email and
// wrong password are indistinguishable to the caller.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user.ID, user.PlanTier)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates a bearer token and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// RequestPasswordReset issues a sealed, time-boxed reset token and hands
// it to the sender. An unknown email is reported as success so the
// endpoint cannot be used to probe for accounts.
func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	expires := time.Now().UTC().Add(s.cfg.ResetTokenTTL).Unix()
	sealed, err := crypto.EncryptString(s.cfg.ResetTokenSecret, user.ID+"|"+strconv.FormatInt(expires, 10))
	if err != nil {
		return fmt.Errorf("seal reset token: %w", err)
	}
	if s.resets == nil {
		s.logger.Warn("password reset requested but no sender wired", "user_id", user.ID)
		return nil
	}
	if err := s.resets.SendReset(ctx, user.Email, hex.EncodeToString(sealed)); err != nil {
		return fmt.Errorf("deliver reset token: %w", err)
	}
	s.logger.Info("password reset requested", "user_id", user.ID)
	return nil
}

// CompletePasswordReset validates a reset token and replaces the
// account password.
func (s Service) CompletePasswordReset(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLen {
		return ErrWeakPassword
	}
	userID, err := s.openResetToken(token)
	if err != nil {
		return err
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	s.logger.Info("password reset completed", "user_id", userID)
	return nil
}

func (s Service) openResetToken(token string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", ErrResetTokenInvalid
	}
	plain, err := crypto.DecryptToString(s.cfg.ResetTokenSecret, raw)
	if err != nil {
		return "", ErrResetTokenInvalid
	}
	userID, expiry, ok := strings.Cut(plain, "|")
	if !ok {
		return "", ErrResetTokenInvalid
	}
	expires, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || time.Now().UTC().Unix() > expires {
		return "", ErrResetTokenInvalid
	}
	return userID, nil
}

func (s Service) issueTokens(userID, tier string) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(userID, tier, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(userID, tier, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
