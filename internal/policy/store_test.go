package policy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/workflow-acl/internal/domain"
	"go.uber.org/zap"
)

type fakeGrantRepo struct {
	grants []domain.Grant
	err    error
}

func (f *fakeGrantRepo) GetAllGrants(context.Context) ([]domain.Grant, error) {
	return f.grants, f.err
}

func TestStore_LookupUnknownIdentity(t *testing.T) {
	s := NewStore(nil, zap.NewNop())

	for _, id := range []string{"nobody", "", "ALICE"} {
		a := s.Lookup(id)
		assert.Equal(t, domain.RoleGuest, a.Role, id)
		assert.Empty(t, a.Tags, id)
		assert.NotNil(t, a.Tags, id)
	}
}

func TestStore_GrantOverwrites(t *testing.T) {
	s := NewStore(nil, zap.NewNop())

	s.Grant("alice", []string{"Sales"}, domain.RoleUser)
	s.Grant("alice", []string{"Finance", "DevOps", "Finance"}, domain.RoleAdministrator)

	a := s.Lookup("alice")
	assert.Equal(t, domain.RoleAdministrator, a.Role)
	assert.Equal(t, []string{"DevOps", "Finance"}, a.Tags)
}

func TestStore_GrantDefaultsToUser(t *testing.T) {
	s := NewStore(nil, zap.NewNop())
	s.Grant("bob", []string{"Kelly"}, "")

	assert.Equal(t, domain.RoleUser, s.Lookup("bob").Role)
}

func TestStore_GrantKeepsUnknownRole(t *testing.T) {
	s := NewStore(nil, zap.NewNop())
	s.Grant("carol", []string{"Kelly"}, "auditor")

	assert.Equal(t, domain.Role("auditor"), s.Lookup("carol").Role)
}

func TestStore_Revoke(t *testing.T) {
	s := NewStore(nil, zap.NewNop(), domain.Grant{Identity: "alice", Role: domain.RoleUser, Tags: []string{"Sales"}})

	s.Revoke("alice")
	s.Revoke("never-existed")

	assert.Equal(t, domain.RoleGuest, s.Lookup("alice").Role)
	assert.Empty(t, s.ListIdentities())
}

func TestStore_ListIdentities(t *testing.T) {
	s := NewStore(nil, zap.NewNop(), DefaultGrants()...)

	assert.ElementsMatch(t, []string{"admin", "kelly", "finance", "devops", "sales"}, s.ListIdentities())
}

func TestStore_Refresh(t *testing.T) {
	repo := &fakeGrantRepo{grants: []domain.Grant{
		{Identity: "dave", Role: domain.RoleUser, Tags: []string{"Support"}},
	}}
	s := NewStore(repo, zap.NewNop(), DefaultGrants()...)

	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, []string{"dave"}, s.ListIdentities())
	assert.Equal(t, []string{"Support"}, s.Lookup("dave").Tags)
}

func TestStore_RefreshErrorKeepsTable(t *testing.T) {
	repo := &fakeGrantRepo{err: errors.New("db down")}
	s := NewStore(repo, zap.NewNop(), DefaultGrants()...)

	require.Error(t, s.Refresh(context.Background()))
	assert.Len(t, s.ListIdentities(), 5)
}

func TestStore_RefreshWithoutRepository(t *testing.T) {
	s := NewStore(nil, zap.NewNop())
	assert.ErrorIs(t, s.Refresh(context.Background()), errNoRepository)
}

func TestStore_ConcurrentGrantAndLookup(t *testing.T) {
	s := NewStore(nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				s.Grant("alice", []string{"A", "B"}, domain.RoleUser)
			} else {
				s.Grant("alice", []string{"C"}, domain.RoleAdministrator)
			}
		}()
		go func() {
			defer wg.Done()
			a := s.Lookup("alice")
			// Never a half-updated identity.
			switch a.Role {
			case domain.RoleUser:
				assert.Equal(t, []string{"A", "B"}, a.Tags)
			case domain.RoleAdministrator:
				assert.Equal(t, []string{"C"}, a.Tags)
			case domain.RoleGuest:
				assert.Empty(t, a.Tags)
			}
		}()
	}
	wg.Wait()
}
