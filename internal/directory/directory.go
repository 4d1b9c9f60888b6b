// Package directory is the read-only administrative view over the policy store.
package directory

import "github.com/xela07ax/workflow-acl/internal/domain"

// PolicyReader is what the directory needs from the policy layer.
type PolicyReader interface {
	ListIdentities() []string
	Lookup(identity string) domain.Access
}

// PermissionResolver derives capability flags from a resolved access entry.
type PermissionResolver interface {
	PermissionsOf(a domain.Access) domain.PermissionSet
}

type Service struct {
	store  PolicyReader
	engine PermissionResolver
}

func NewService(store PolicyReader, engine PermissionResolver) *Service {
	return &Service{store: store, engine: engine}
}

// ListAllWithPermissions rebuilds the view from the store on every call.
// Identities revoked between listing and lookup show up as guests.
func (s *Service) ListAllWithPermissions() []domain.DirectoryEntry {
	ids := s.store.ListIdentities()
	entries := make([]domain.DirectoryEntry, 0, len(ids))
	for _, id := range ids {
		a := s.store.Lookup(id)
		entries = append(entries, domain.DirectoryEntry{
			Identity:     id,
			Role:         a.Role,
			Tags:         a.Tags,
			Capabilities: s.engine.PermissionsOf(a),
		})
	}
	return entries
}
