package domain

import "time"

type AuditAction string

const (
	ActionLogin              AuditAction = "login"
	ActionLogout             AuditAction = "logout"
	ActionViewWorkflow       AuditAction = "view_workflow"
	ActionExecuteWorkflow    AuditAction = "execute_workflow"
	ActionActivateWorkflow   AuditAction = "activate_workflow"
	ActionDeactivateWorkflow AuditAction = "deactivate_workflow"

	// Administrative actions.
	ActionGrantAccess  AuditAction = "grant_access"
	ActionRevokeAccess AuditAction = "revoke_access"
	ActionPruneAudit   AuditAction = "prune_audit_logs"
	ActionViewAudit    AuditAction = "view_audit_logs"
)

type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
	AuditDenied  AuditStatus = "denied"
)

// UnknownUser marks records written before the caller was authenticated.
const UnknownUser = "unknown"

// AuditRecord is one line of the audit trail. Immutable once appended.
type AuditRecord struct {
	ID           string                 `json:"id,omitempty"` // server-assigned, dedupes mirrored copies
	Timestamp    time.Time              `json:"timestamp"`    // server-assigned at append time
	Username     string                 `json:"username"`
	Action       AuditAction            `json:"action"`
	WorkflowID   string                 `json:"workflow_id,omitempty"`
	WorkflowName string                 `json:"workflow_name,omitempty"`
	Status       AuditStatus            `json:"status"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// AuditFilter holds equality filters. Empty fields match everything.
type AuditFilter struct {
	Username string
	Action   AuditAction
}

func (f AuditFilter) Match(r AuditRecord) bool {
	if f.Username != "" && r.Username != f.Username {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	return true
}

// ActivitySummary aggregates one user's actions over a trailing window.
type ActivitySummary struct {
	Username                  string              `json:"username"`
	TotalActions              int                 `json:"total_actions"`
	ActionsBreakdown          map[AuditAction]int `json:"actions_breakdown"`
	DistinctWorkflowsAccessed int                 `json:"workflows_accessed"`
	WindowDays                int                 `json:"period_days"`
}
