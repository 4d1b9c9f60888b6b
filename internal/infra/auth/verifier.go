package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier proves an identity before any policy decision is made.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) error
}

// UserProvider returns nil, nil for an unknown user.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// BcryptVerifier compares against stored bcrypt hashes. Plaintext passwords are never stored.
type BcryptVerifier struct {
	users UserProvider
}

func NewBcryptVerifier(users UserProvider) *BcryptVerifier {
	return &BcryptVerifier{users: users}
}

// Verify returns domain.ErrInvalidCredentials for unknown users and wrong passwords alike.
func (v *BcryptVerifier) Verify(ctx context.Context, username, password string) error {
	user, err := v.users.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidCredentials
		}
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}

// StaticUsers is an in-memory UserProvider, used when no database is configured.
type StaticUsers map[string]*domain.User

func (s StaticUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return s[username], nil
}

// HashPassword is used to seed users.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
