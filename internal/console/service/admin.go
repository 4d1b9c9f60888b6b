package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"go.uber.org/zap"
)

// PolicyAdmin mutates the in-memory policy table. Implemented by policy.Store.
type PolicyAdmin interface {
	AccessLookup
	Grant(identity string, tags []string, role domain.Role)
	Revoke(identity string)
}

// GrantWriter persists grants so other instances can reload them. Optional.
type GrantWriter interface {
	UpsertGrant(ctx context.Context, g domain.Grant) error
	DeleteGrant(ctx context.Context, identity string) error
}

type Notifier interface {
	NotifyUpdate(ctx context.Context) error
}

type DirectoryLister interface {
	ListAllWithPermissions() []domain.DirectoryEntry
}

// AdminService covers identity administration and audit review. Both are administrator-only.
type AdminService struct {
	store      PolicyAdmin
	repo       GrantWriter
	notifier   Notifier
	directory  DirectoryLister
	authz      Authorizer
	audit      Auditor
	reader     AuditReader
	windowDays int
	logger     *zap.Logger
}

type AdminDeps struct {
	Store     PolicyAdmin
	Repo      GrantWriter // nil keeps grants in memory only
	Notifier  Notifier    // nil disables broadcast
	Directory DirectoryLister
	Authz     Authorizer
	Audit     Auditor
	Reader    AuditReader

	// SummaryWindowDays is used when a summary is requested without a window.
	SummaryWindowDays int
}

func NewAdminService(d AdminDeps, logger *zap.Logger) *AdminService {
	if d.SummaryWindowDays <= 0 {
		d.SummaryWindowDays = 7
	}
	return &AdminService{
		store:      d.Store,
		repo:       d.Repo,
		notifier:   d.Notifier,
		directory:  d.Directory,
		authz:      d.Authz,
		audit:      d.Audit,
		reader:     d.Reader,
		windowDays: d.SummaryWindowDays,
		logger:     logger.Named("admin-service"),
	}
}

func (s *AdminService) ListIdentities(actor string) ([]domain.DirectoryEntry, error) {
	if !s.authz.PermissionsFor(actor).CanViewAll {
		return nil, domain.ErrAccessDenied
	}
	return s.directory.ListAllWithPermissions(), nil
}

// GetIdentity returns the effective access of any identity, known or not.
func (s *AdminService) GetIdentity(actor, identity string) (domain.DirectoryEntry, error) {
	if !s.authz.PermissionsFor(actor).CanViewAll {
		return domain.DirectoryEntry{}, domain.ErrAccessDenied
	}
	a := s.store.Lookup(identity)
	return domain.DirectoryEntry{
		Identity:     identity,
		Role:         a.Role,
		Tags:         a.Tags,
		Capabilities: s.authz.PermissionsOf(a),
	}, nil
}

// Grant sets the identity's role and tags. An empty role means user.
func (s *AdminService) Grant(ctx context.Context, actor, identity string, tags []string, role domain.Role) error {
	if role == "" {
		role = domain.RoleUser
	}
	details := map[string]interface{}{"identity": identity, "role": string(role), "allowed_tags": tags}

	if !s.authz.PermissionsFor(actor).CanViewAll {
		s.log(ctx, actor, domain.ActionGrantAccess, domain.AuditDenied, details)
		return domain.ErrAccessDenied
	}
	if !role.Known() {
		s.logger.Warn("granting unrecognized role; it carries no capabilities",
			zap.String("identity", identity), zap.String("role", string(role)))
	}

	if s.repo != nil {
		if err := s.repo.UpsertGrant(ctx, domain.Grant{Identity: identity, Role: role, Tags: tags}); err != nil {
			details["error"] = err.Error()
			s.log(ctx, actor, domain.ActionGrantAccess, domain.AuditFailed, details)
			return fmt.Errorf("persist grant: %w", err)
		}
	}
	s.store.Grant(identity, tags, role)
	s.broadcast(ctx)

	s.log(ctx, actor, domain.ActionGrantAccess, domain.AuditSuccess, details)
	return nil
}

func (s *AdminService) Revoke(ctx context.Context, actor, identity string) error {
	details := map[string]interface{}{"identity": identity}

	if !s.authz.PermissionsFor(actor).CanViewAll {
		s.log(ctx, actor, domain.ActionRevokeAccess, domain.AuditDenied, details)
		return domain.ErrAccessDenied
	}

	if s.repo != nil {
		if err := s.repo.DeleteGrant(ctx, identity); err != nil {
			details["error"] = err.Error()
			s.log(ctx, actor, domain.ActionRevokeAccess, domain.AuditFailed, details)
			return fmt.Errorf("delete grant: %w", err)
		}
	}
	s.store.Revoke(identity)
	s.broadcast(ctx)

	s.log(ctx, actor, domain.ActionRevokeAccess, domain.AuditSuccess, details)
	return nil
}

func (s *AdminService) QueryAudit(ctx context.Context, actor string, filter domain.AuditFilter, limit int) ([]domain.AuditRecord, error) {
	if err := s.canReadAudit(ctx, actor); err != nil {
		return nil, err
	}
	records, err := s.reader.Query(ctx, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return records, nil
}

// Summary aggregates a user's activity. windowDays <= 0 uses the configured window.
func (s *AdminService) Summary(ctx context.Context, actor, username string, windowDays int) (domain.ActivitySummary, error) {
	if err := s.canReadAudit(ctx, actor); err != nil {
		return domain.ActivitySummary{}, err
	}
	if windowDays <= 0 {
		windowDays = s.windowDays
	}
	sum, err := s.reader.Summarize(ctx, username, windowDays)
	if err != nil {
		return domain.ActivitySummary{}, fmt.Errorf("summarize audit log: %w", err)
	}
	return sum, nil
}

// Prune drops records older than retentionDays and returns how many were removed.
func (s *AdminService) Prune(ctx context.Context, actor string, retentionDays int) (int, error) {
	details := map[string]interface{}{"retention_days": retentionDays}

	if !s.authz.PermissionsFor(actor).CanViewAuditLogs {
		s.log(ctx, actor, domain.ActionPruneAudit, domain.AuditDenied, details)
		return 0, domain.ErrAccessDenied
	}
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention must not be negative: %d", retentionDays)
	}

	removed, err := s.reader.Prune(ctx, retentionDays)
	if err != nil {
		details["error"] = err.Error()
		s.log(ctx, actor, domain.ActionPruneAudit, domain.AuditFailed, details)
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	details["removed"] = removed
	s.log(ctx, actor, domain.ActionPruneAudit, domain.AuditSuccess, details)
	return removed, nil
}

// canReadAudit only audits refusals; successful reads would flood the trail with itself.
func (s *AdminService) canReadAudit(ctx context.Context, actor string) error {
	if s.authz.PermissionsFor(actor).CanViewAuditLogs {
		return nil
	}
	s.log(ctx, actor, domain.ActionViewAudit, domain.AuditDenied, nil)
	return domain.ErrAccessDenied
}

func (s *AdminService) broadcast(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyUpdate(ctx); err != nil {
		s.logger.Error("policy update broadcast failed", zap.Error(err))
	}
}

func (s *AdminService) log(ctx context.Context, actor string, action domain.AuditAction, status domain.AuditStatus, details map[string]interface{}) {
	record(ctx, s.audit, domain.AuditRecord{
		Username: actor,
		Action:   action,
		Status:   status,
		Details:  details,
	})
}
