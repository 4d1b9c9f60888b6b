package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"github.com/xela07ax/workflow-acl/internal/workflows"
	"go.uber.org/zap"
)

// AccessLookup resolves an identity's role and tags. Implemented by policy.Store.
type AccessLookup interface {
	Lookup(identity string) domain.Access
}

// Profile is what the caller may do, as shown on the dashboard header.
type Profile struct {
	Username    string               `json:"username"`
	Role        domain.Role          `json:"role"`
	AllowedTags []string             `json:"allowed_tags"`
	Permissions domain.PermissionSet `json:"permissions"`
}

// WorkflowService puts the policy engine in front of the workflow platform.
// Every decision, including denials, ends up in the audit trail.
type WorkflowService struct {
	source workflows.Source
	authz  Authorizer
	access AccessLookup
	audit  Auditor
	logger *zap.Logger
}

func NewWorkflowService(source workflows.Source, authz Authorizer, access AccessLookup, audit Auditor, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{
		source: source,
		authz:  authz,
		access: access,
		audit:  audit,
		logger: logger.Named("workflow-service"),
	}
}

func (s *WorkflowService) Profile(identity string) Profile {
	a := s.access.Lookup(identity)
	return Profile{
		Username:    identity,
		Role:        a.Role,
		AllowedTags: a.Tags,
		Permissions: s.authz.PermissionsOf(a),
	}
}

// List returns the workflows the identity may see, in platform order.
func (s *WorkflowService) List(ctx context.Context, identity string) ([]domain.Workflow, error) {
	all, err := s.source.ListWorkflows(ctx)
	if err != nil {
		s.deny(ctx, identity, domain.ActionViewWorkflow, domain.Workflow{}, domain.AuditFailed, err)
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	visible := s.authz.FilterAccessible(identity, all)
	record(ctx, s.audit, domain.AuditRecord{
		Username: identity,
		Action:   domain.ActionViewWorkflow,
		Status:   domain.AuditSuccess,
		Details:  map[string]interface{}{"listed": len(visible), "total": len(all)},
	})
	return visible, nil
}

// Grouped is List arranged by tag, restricted to the tags the identity holds.
func (s *WorkflowService) Grouped(ctx context.Context, identity string) ([]domain.TagGroup, error) {
	visible, err := s.List(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.authz.GroupByTag(identity, visible), nil
}

func (s *WorkflowService) Get(ctx context.Context, identity, id string) (domain.Workflow, error) {
	wf, err := s.resolve(ctx, identity, domain.ActionViewWorkflow, id)
	if err != nil {
		return domain.Workflow{}, err
	}
	if !s.authz.HasResourceAccess(identity, wf.Tags) {
		s.deny(ctx, identity, domain.ActionViewWorkflow, wf, domain.AuditDenied, nil)
		return domain.Workflow{}, domain.ErrAccessDenied
	}

	s.succeed(ctx, identity, domain.ActionViewWorkflow, wf, nil)
	return wf, nil
}

func (s *WorkflowService) Executions(ctx context.Context, identity, id string, limit int) ([]domain.Execution, error) {
	wf, err := s.resolve(ctx, identity, domain.ActionViewWorkflow, id)
	if err != nil {
		return nil, err
	}
	details := map[string]interface{}{"view": "executions"}
	if !s.authz.HasResourceAccess(identity, wf.Tags) {
		s.deny(ctx, identity, domain.ActionViewWorkflow, wf, domain.AuditDenied, nil)
		return nil, domain.ErrAccessDenied
	}

	execs, err := s.source.ListExecutions(ctx, id, limit)
	if err != nil {
		s.deny(ctx, identity, domain.ActionViewWorkflow, wf, domain.AuditFailed, err)
		return nil, fmt.Errorf("list executions: %w", err)
	}
	s.succeed(ctx, identity, domain.ActionViewWorkflow, wf, details)
	return execs, nil
}

// SetActive activates or deactivates a workflow. Requires toggle rights on its tags.
func (s *WorkflowService) SetActive(ctx context.Context, identity, id string, active bool) error {
	action := domain.ActionDeactivateWorkflow
	if active {
		action = domain.ActionActivateWorkflow
	}

	wf, err := s.resolve(ctx, identity, action, id)
	if err != nil {
		return err
	}
	if !s.authz.CanToggle(identity, wf.Tags) {
		s.deny(ctx, identity, action, wf, domain.AuditDenied, nil)
		return domain.ErrAccessDenied
	}

	if err := s.source.SetActive(ctx, id, active); err != nil {
		s.deny(ctx, identity, action, wf, domain.AuditFailed, err)
		return fmt.Errorf("set active: %w", err)
	}
	s.succeed(ctx, identity, action, wf, nil)
	return nil
}

// Execute triggers a manual run. Requires execute rights on the workflow's tags.
func (s *WorkflowService) Execute(ctx context.Context, identity, id string) error {
	wf, err := s.resolve(ctx, identity, domain.ActionExecuteWorkflow, id)
	if err != nil {
		return err
	}
	if !s.authz.CanExecute(identity, wf.Tags) {
		s.deny(ctx, identity, domain.ActionExecuteWorkflow, wf, domain.AuditDenied, nil)
		return domain.ErrAccessDenied
	}

	if err := s.source.Trigger(ctx, id); err != nil {
		s.deny(ctx, identity, domain.ActionExecuteWorkflow, wf, domain.AuditFailed, err)
		return fmt.Errorf("trigger: %w", err)
	}
	s.succeed(ctx, identity, domain.ActionExecuteWorkflow, wf, nil)
	return nil
}

// resolve fetches the workflow; an unknown id is audited as a failed attempt.
func (s *WorkflowService) resolve(ctx context.Context, identity string, action domain.AuditAction, id string) (domain.Workflow, error) {
	wf, err := workflows.Find(ctx, s.source, id)
	if err != nil {
		s.deny(ctx, identity, action, domain.Workflow{ID: id}, domain.AuditFailed, err)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			return domain.Workflow{}, err
		}
		return domain.Workflow{}, fmt.Errorf("find workflow: %w", err)
	}
	return wf, nil
}

func (s *WorkflowService) succeed(ctx context.Context, identity string, action domain.AuditAction, wf domain.Workflow, details map[string]interface{}) {
	record(ctx, s.audit, domain.AuditRecord{
		Username:     identity,
		Action:       action,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Status:       domain.AuditSuccess,
		Details:      details,
	})
}

// deny records a refused (denied) or broken (failed) attempt.
func (s *WorkflowService) deny(ctx context.Context, identity string, action domain.AuditAction, wf domain.Workflow, status domain.AuditStatus, cause error) {
	var details map[string]interface{}
	if cause != nil {
		details = map[string]interface{}{"error": cause.Error()}
	}
	if status == domain.AuditDenied {
		s.logger.Info("access denied",
			zap.String("identity", identity),
			zap.String("action", string(action)),
			zap.String("workflow_id", wf.ID))
	}
	record(ctx, s.audit, domain.AuditRecord{
		Username:     identity,
		Action:       action,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Status:       status,
		Details:      details,
	})
}
