// Package directory provides role directory adapters: an in-memory snapshot
// and a retrying decorator for remote or database-backed directories.
package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Static is an in-memory role directory loaded from configuration
type Static struct {
	mu      sync.RWMutex
	members map[string]map[entity.Role]map[string]bool // company -> role -> users
}

// NewStatic creates a directory holding the given memberships
func NewStatic(memberships []entity.Membership) *Static {
	s := &Static{members: make(map[string]map[entity.Role]map[string]bool)}
	for _, m := range memberships {
		s.grant(m)
	}
	return s
}

// grant adds a membership
func (s *Static) grant(m entity.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roles, ok := s.members[m.CompanyID]
	if !ok {
		roles = make(map[entity.Role]map[string]bool)
		s.members[m.CompanyID] = roles
	}
	users, ok := roles[m.Role]
	if !ok {
		users = make(map[string]bool)
		roles[m.Role] = users
	}
	users[m.UserID] = true
}

// UsersWithRole returns the sorted holders of role in the company
func (s *Static) UsersWithRole(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []string{}
	for userID := range s.members[companyID][role] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

// MembershipsOf returns every role the user holds, ordered by company then role
func (s *Static) MembershipsOf(ctx context.Context, userID string) ([]entity.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.Membership
	for companyID, roles := range s.members {
		for role, users := range roles {
			if users[userID] {
				out = append(out, entity.Membership{CompanyID: companyID, UserID: userID, Role: role})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompanyID != out[j].CompanyID {
			return out[i].CompanyID < out[j].CompanyID
		}
		return out[i].Role < out[j].Role
	})
	return out, nil
}

var _ port.RoleDirectory = (*Static)(nil)
