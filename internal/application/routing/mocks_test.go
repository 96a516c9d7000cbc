package routing

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

type mockChainRepo struct {
	findActiveFunc func(ctx context.Context, companyID string, entityType entity.EntityType) ([]*entity.ApprovalChain, error)
}

func (m *mockChainRepo) Create(ctx context.Context, chain *entity.ApprovalChain) error { return nil }
func (m *mockChainRepo) Update(ctx context.Context, chain *entity.ApprovalChain) error { return nil }
func (m *mockChainRepo) GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalChain, error) {
	return nil, entity.ErrNotFound
}
func (m *mockChainRepo) ListByCompany(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error) {
	return nil, nil
}
func (m *mockChainRepo) FindActive(ctx context.Context, companyID string, entityType entity.EntityType) ([]*entity.ApprovalChain, error) {
	if m.findActiveFunc != nil {
		return m.findActiveFunc(ctx, companyID, entityType)
	}
	return nil, nil
}
func (m *mockChainRepo) Delete(ctx context.Context, companyID, id string) error { return nil }
func (m *mockChainRepo) IsReferenced(ctx context.Context, id string) (bool, error) {
	return false, nil
}

type mockDirectory struct {
	usersWithRoleFunc func(ctx context.Context, companyID string, role entity.Role) ([]string, error)
	calls             int
}

func (m *mockDirectory) UsersWithRole(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
	m.calls++
	if m.usersWithRoleFunc != nil {
		return m.usersWithRoleFunc(ctx, companyID, role)
	}
	return nil, nil
}

func (m *mockDirectory) MembershipsOf(ctx context.Context, userID string) ([]entity.Membership, error) {
	return nil, nil
}

type mockLogger struct {
	warnings []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.warnings = append(m.warnings, msg)
}
