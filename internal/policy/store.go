package policy

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/workflow-acl/internal/domain"
	"go.uber.org/zap"
)

// GrantRepository is the durable source of grants. Only Refresh reads it.
type GrantRepository interface {
	GetAllGrants(ctx context.Context) ([]domain.Grant, error)
}

type entry struct {
	role domain.Role
	tags map[string]struct{}
}

// Store holds identity -> (role, allowed tags). All decisions read from memory;
// a repository, when present, is only used to reload the whole table.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	repo   GrantRepository
	logger *zap.Logger
}

var errNoRepository = errors.New("policy: store has no grant repository")

func NewStore(repo GrantRepository, logger *zap.Logger, seed ...domain.Grant) *Store {
	s := &Store{
		entries: make(map[string]entry, len(seed)),
		repo:    repo,
		logger:  logger.Named("policy-store"),
	}
	for _, g := range seed {
		s.entries[g.Identity] = newEntry(g.Tags, g.Role)
	}
	return s
}

func newEntry(tags []string, role domain.Role) entry {
	if role == "" {
		role = domain.RoleUser
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return entry{role: role, tags: set}
}

// Grant sets or overwrites the identity's tags and role. An empty role means user.
func (s *Store) Grant(identity string, tags []string, role domain.Role) {
	e := newEntry(tags, role)

	s.mu.Lock()
	s.entries[identity] = e
	s.mu.Unlock()

	s.logger.Info("access granted",
		zap.String("identity", identity),
		zap.String("role", string(e.role)),
		zap.Strings("tags", sortedTags(e.tags)))
}

// Revoke removes the identity. Unknown identities are a no-op.
func (s *Store) Revoke(identity string) {
	s.mu.Lock()
	_, existed := s.entries[identity]
	delete(s.entries, identity)
	s.mu.Unlock()

	if existed {
		s.logger.Info("access revoked", zap.String("identity", identity))
	}
}

// Lookup never fails: unknown identities are guests without tags.
func (s *Store) Lookup(identity string) domain.Access {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()

	if !ok {
		return domain.Access{Role: domain.RoleGuest, Tags: []string{}}
	}
	role := e.role
	if role == "" {
		role = domain.RoleGuest
	}
	return domain.Access{Role: role, Tags: sortedTags(e.tags)}
}

// ListIdentities returns a snapshot of known identities, sorted.
func (s *Store) ListIdentities() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Snapshot returns every grant, sorted by identity.
func (s *Store) Snapshot() []domain.Grant {
	s.mu.RLock()
	grants := make([]domain.Grant, 0, len(s.entries))
	for id, e := range s.entries {
		grants = append(grants, domain.Grant{Identity: id, Role: e.role, Tags: sortedTags(e.tags)})
	}
	s.mu.RUnlock()

	slices.SortFunc(grants, func(a, b domain.Grant) int {
		return strings.Compare(a.Identity, b.Identity)
	})
	return grants
}

// Refresh replaces the whole table with what the repository holds.
func (s *Store) Refresh(ctx context.Context) error {
	if s.repo == nil {
		return errNoRepository
	}
	start := time.Now()
	grants, err := s.repo.GetAllGrants(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]entry, len(grants))
	for _, g := range grants {
		next[g.Identity] = newEntry(g.Tags, g.Role)
	}

	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()

	s.logger.Info("policy table refreshed",
		zap.Int("count", len(next)),
		zap.Duration("took", time.Since(start)))
	return nil
}

func sortedTags(set map[string]struct{}) []string {
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}
