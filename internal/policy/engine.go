package policy

import "github.com/xela07ax/workflow-acl/internal/domain"

// AccessResolver resolves an identity to its role and tags. *Store implements it.
type AccessResolver interface {
	Lookup(identity string) domain.Access
}

// Engine answers "may this identity do X on a resource with these tags".
// It is stateless: every call resolves the identity afresh, nothing is cached.
type Engine struct {
	store AccessResolver
}

func NewEngine(store AccessResolver) *Engine {
	return &Engine{store: store}
}

func (e *Engine) PermissionsFor(identity string) domain.PermissionSet {
	return permissions(e.store.Lookup(identity))
}

// PermissionsOf derives capabilities from an already resolved Access, so a caller that
// shows role, tags and capabilities together gets all three from one Lookup.
func (e *Engine) PermissionsOf(a domain.Access) domain.PermissionSet {
	return permissions(a)
}

func (e *Engine) HasResourceAccess(identity string, resourceTags []string) bool {
	return hasAccess(e.store.Lookup(identity), resourceTags)
}

func (e *Engine) CanExecute(identity string, resourceTags []string) bool {
	a := e.store.Lookup(identity)
	return permissions(a).CanExecute && hasAccess(a, resourceTags)
}

func (e *Engine) CanToggle(identity string, resourceTags []string) bool {
	a := e.store.Lookup(identity)
	return permissions(a).CanToggle && hasAccess(a, resourceTags)
}

// FilterAccessible keeps the workflows the identity may see, in input order.
// Administrators get a copy of the full input.
func (e *Engine) FilterAccessible(identity string, workflows []domain.Workflow) []domain.Workflow {
	a := e.store.Lookup(identity)
	out := make([]domain.Workflow, 0, len(workflows))
	if a.Role == domain.RoleAdministrator {
		return append(out, workflows...)
	}
	for _, wf := range workflows {
		if hasAccess(a, wf.Tags) {
			out = append(out, wf)
		}
	}
	return out
}

// GroupByTag groups accessible workflows by tag, in order of first appearance.
// Non-administrators only get groups for tags they hold; a workflow shows up under
// every matching tag. Untagged workflows are not grouped.
func (e *Engine) GroupByTag(identity string, workflows []domain.Workflow) []domain.TagGroup {
	a := e.store.Lookup(identity)
	admin := a.Role == domain.RoleAdministrator
	held := tagSet(a.Tags)

	var groups []domain.TagGroup
	index := make(map[string]int)
	for _, wf := range workflows {
		if !admin && !hasAccess(a, wf.Tags) {
			continue
		}
		for _, tag := range wf.Tags {
			if _, ok := held[tag]; !admin && !ok {
				continue
			}
			i, ok := index[tag]
			if !ok {
				i = len(groups)
				index[tag] = i
				groups = append(groups, domain.TagGroup{Tag: tag})
			}
			groups[i].Workflows = append(groups[i].Workflows, wf)
		}
	}
	return groups
}

func permissions(a domain.Access) domain.PermissionSet {
	admin := a.Role == domain.RoleAdministrator
	return domain.PermissionSet{
		CanView:          len(a.Tags) > 0 || admin,
		CanExecute:       admin || a.Role == domain.RoleUser,
		CanToggle:        admin,
		CanDelete:        admin,
		CanViewAll:       admin,
		CanViewAuditLogs: admin,
	}
}

// hasAccess: administrators always; everyone else needs a shared tag.
// Matching is exact and case-sensitive.
func hasAccess(a domain.Access, resourceTags []string) bool {
	if a.Role == domain.RoleAdministrator {
		return true
	}
	if len(a.Tags) == 0 || len(resourceTags) == 0 {
		return false
	}
	held := tagSet(a.Tags)
	for _, t := range resourceTags {
		if _, ok := held[t]; ok {
			return true
		}
	}
	return false
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
