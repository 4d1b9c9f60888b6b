package domain

import "time"

// Role is a coarse capability tier. Unknown strings are stored as-is and get no elevated capability.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleUser          Role = "user"
	RoleGuest         Role = "guest"
)

// Known reports whether the role is one of the three recognized tiers.
func (r Role) Known() bool {
	switch r {
	case RoleAdministrator, RoleUser, RoleGuest:
		return true
	}
	return false
}

// Grant is one row of the policy table: which tags an identity may see and at what tier.
type Grant struct {
	Identity  string    `json:"identity"`
	Role      Role      `json:"role"`
	Tags      []string  `json:"allowed_tags"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Access is the resolved view of an identity. Unknown identities resolve to guest with no tags.
type Access struct {
	Role Role     `json:"role"`
	Tags []string `json:"allowed_tags"`
}

// PermissionSet holds capability flags derived from role and tags. Never stored.
type PermissionSet struct {
	CanView          bool `json:"can_view"`
	CanExecute       bool `json:"can_execute"`
	CanToggle        bool `json:"can_toggle"`
	CanDelete        bool `json:"can_delete"`
	CanViewAll       bool `json:"can_view_all"`
	CanViewAuditLogs bool `json:"can_view_audit_logs"`
}

// DirectoryEntry is the administrative view of one identity.
type DirectoryEntry struct {
	Identity     string        `json:"username"`
	Role         Role          `json:"role"`
	Tags         []string      `json:"allowed_tags"`
	Capabilities PermissionSet `json:"capabilities"`
}
