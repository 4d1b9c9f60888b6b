package service

import (
	"context"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"github.com/xela07ax/workflow-acl/internal/infra"
)

// Authorizer answers access questions. Implemented by policy.Engine.
type Authorizer interface {
	PermissionsFor(identity string) domain.PermissionSet
	PermissionsOf(a domain.Access) domain.PermissionSet
	HasResourceAccess(identity string, resourceTags []string) bool
	CanExecute(identity string, resourceTags []string) bool
	CanToggle(identity string, resourceTags []string) bool
	FilterAccessible(identity string, workflows []domain.Workflow) []domain.Workflow
	GroupByTag(identity string, workflows []domain.Workflow) []domain.TagGroup
}

// Auditor is the write side of the audit trail. Implemented by audit.Log.
type Auditor interface {
	Append(rec domain.AuditRecord) domain.AuditRecord
}

// AuditReader is the administrative side of the audit trail. Implemented by audit.Log.
type AuditReader interface {
	Query(ctx context.Context, filter domain.AuditFilter, limit int) ([]domain.AuditRecord, error)
	Summarize(ctx context.Context, username string, windowDays int) (domain.ActivitySummary, error)
	Prune(ctx context.Context, retentionDays int) (int, error)
}

// record appends an audit record, adding the request trace id when there is one.
func record(ctx context.Context, a Auditor, rec domain.AuditRecord) {
	if id := infra.TraceID(ctx); id != "" {
		details := make(map[string]interface{}, len(rec.Details)+1)
		for k, v := range rec.Details {
			details[k] = v
		}
		details["trace_id"] = id
		rec.Details = details
	}
	a.Append(rec)
}
