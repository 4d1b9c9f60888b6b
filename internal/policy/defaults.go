package policy

import "github.com/xela07ax/workflow-acl/internal/domain"

// DefaultGrants is the bootstrap table used when no grant repository is configured.
func DefaultGrants() []domain.Grant {
	return []domain.Grant{
		{Identity: "admin", Role: domain.RoleAdministrator, Tags: []string{"Kelly", "Sales", "Finance", "DevOps", "Marketing", "Support"}},
		{Identity: "kelly", Role: domain.RoleUser, Tags: []string{"Kelly"}},
		{Identity: "finance", Role: domain.RoleUser, Tags: []string{"Finance"}},
		{Identity: "devops", Role: domain.RoleUser, Tags: []string{"DevOps"}},
		{Identity: "sales", Role: domain.RoleUser, Tags: []string{"Sales"}},
	}
}
