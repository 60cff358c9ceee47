// Package authtoken issues session tokens (signed JWTs) and password
// reset tokens (random strings stored through a repository).
package authtoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultResetTTL   = time.Hour

	resetTokenBytes = 32
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims carried by a session token.
type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	resets     repository.ResetTokenRepository
	now        func() time.Time
}

type Option func(*Manager)

func WithSessionTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sessionTTL = d
		}
	}
}

func WithResetTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.resetTTL = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(secret string, resets repository.ResetTokenRepository, opts ...Option) *Manager {
	m := &Manager{
		secret:     []byte(secret),
		sessionTTL: DefaultSessionTTL,
		resetTTL:   DefaultResetTTL,
		resets:     resets,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) ResetTTL() time.Duration { return m.resetTTL }

func (m *Manager) IssueSession(u *models.User) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.sessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("authtoken.IssueSession: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *Manager) VerifySession(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil || !token.Valid || claims.ID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueReset stores and returns a new single-use reset token for u.
func (m *Manager) IssueReset(ctx context.Context, u *models.User) (*models.ResetToken, error) {
	const op = "authtoken.IssueReset"

	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := m.now().UTC()
	rt := &models.ResetToken{
		UserID:    u.ID,
		Token:     hex.EncodeToString(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(m.resetTTL),
	}
	if err := m.resets.CreateResetToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rt, nil
}

// TakeReset purges expired tokens, then removes and returns the matching
// live token. It returns nil when there is none or another caller already
// took it, so a token can back at most one reset.
func (m *Manager) TakeReset(ctx context.Context, token string) (*models.ResetToken, error) {
	const op = "authtoken.TakeReset"

	now := m.now()
	if _, err := m.resets.PurgeExpiredResetTokens(ctx, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if token == "" {
		return nil, nil
	}
	rt, err := m.resets.TakeResetToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rt == nil || rt.Expired(now) {
		return nil, nil
	}
	return rt, nil
}

// RevokeReset removes a token that was never delivered.
func (m *Manager) RevokeReset(ctx context.Context, token string) error {
	if err := m.resets.DeleteResetToken(ctx, token); err != nil {
		return fmt.Errorf("authtoken.RevokeReset: %w", err)
	}
	return nil
}
