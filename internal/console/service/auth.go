package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"github.com/xela07ax/workflow-acl/internal/infra/auth"
	"go.uber.org/zap"
)

type TokenIssuer interface {
	Issue(username string) (*domain.TokenResponse, error)
}

// AuthService verifies credentials, issues session tokens and audits both login and logout.
type AuthService struct {
	verifier auth.CredentialVerifier
	issuer   TokenIssuer
	audit    Auditor
	logger   *zap.Logger
}

func NewAuthService(verifier auth.CredentialVerifier, issuer TokenIssuer, audit Auditor, logger *zap.Logger) *AuthService {
	return &AuthService{
		verifier: verifier,
		issuer:   issuer,
		audit:    audit,
		logger:   logger.Named("auth-service"),
	}
}

// Login returns domain.ErrInvalidCredentials without saying which part was wrong.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	if err := s.verifier.Verify(ctx, username, password); err != nil {
		s.loginFailed(ctx, username, err)
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	tok, err := s.issuer.Issue(username)
	if err != nil {
		s.loginFailed(ctx, username, err)
		return nil, err
	}

	record(ctx, s.audit, domain.AuditRecord{Username: username, Action: domain.ActionLogin, Status: domain.AuditSuccess})
	return tok, nil
}

// Logout only records the event: tokens are stateless and simply expire.
func (s *AuthService) Logout(ctx context.Context, username string) {
	record(ctx, s.audit, domain.AuditRecord{Username: username, Action: domain.ActionLogout, Status: domain.AuditSuccess})
}

func (s *AuthService) loginFailed(ctx context.Context, username string, err error) {
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		s.logger.Error("login failed", zap.String("username", username), zap.Error(err))
	}
	record(ctx, s.audit, domain.AuditRecord{
		Username: username,
		Action:   domain.ActionLogin,
		Status:   domain.AuditFailed,
		Details:  map[string]interface{}{"reason": reason(err)},
	})
}

func reason(err error) string {
	if errors.Is(err, domain.ErrInvalidCredentials) {
		return "invalid_credentials"
	}
	return "internal_error"
}
