package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

func TestMaterializer_Materialize(t *testing.T) {
	c := chain("two-step", 0, nil, 1, baseTime)
	c.Steps = []entity.StepTemplate{
		{Level: 2, Role: entity.RoleOwner},
		{Level: 1, Role: entity.RoleManager},
	}
	req := &entity.ApprovalRequest{ID: "req-1", CompanyID: "company-1", Status: entity.RequestStatusPending}

	steps := NewMaterializer(&mockDirectory{}, &mockLogger{}).Materialize(c, req)

	require.Len(t, steps, 2)
	assert.Equal(t, "two-step", req.ChainID)
	assert.Equal(t, steps, req.Steps)
	assert.Equal(t, 1, steps[0].Level)
	assert.Equal(t, entity.RoleManager, steps[0].RequiredRole)
	assert.Equal(t, 2, steps[1].Level)
	assert.Equal(t, entity.RoleOwner, steps[1].RequiredRole)
	for _, s := range steps {
		assert.Equal(t, entity.StepStatusPending, s.Status)
		assert.Equal(t, "req-1", s.RequestID)
		assert.NotEmpty(t, s.ID)
		assert.Empty(t, s.ApproverID)
	}
	assert.NotEqual(t, steps[0].ID, steps[1].ID)
}

func TestMaterializer_MaterializeCopiesTemplates(t *testing.T) {
	c := chain("copy", 0, nil, 1, baseTime)
	req := &entity.ApprovalRequest{ID: "req-1"}
	m := NewMaterializer(&mockDirectory{}, &mockLogger{})

	m.Materialize(c, req)
	c.Steps[0].Role = entity.RoleOwner

	assert.Equal(t, entity.RoleManager, req.Steps[0].RequiredRole)
}

func TestMaterializer_ResolvePool(t *testing.T) {
	dir := &mockDirectory{
		usersWithRoleFunc: func(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
			assert.Equal(t, "company-1", companyID)
			assert.Equal(t, entity.RoleManager, role)
			return []string{"m1", "m2"}, nil
		},
	}
	step := &entity.ApprovalStep{Level: 1, RequiredRole: entity.RoleManager}

	pool, err := NewMaterializer(dir, &mockLogger{}).ResolvePool(context.Background(), "company-1", step)

	require.NoError(t, err)
	assert.False(t, pool.Empty())
	assert.True(t, pool.Contains("m2"))
	assert.False(t, pool.Contains("m3"))
}

func TestMaterializer_ResolvePoolFailsClosed(t *testing.T) {
	dir := &mockDirectory{
		usersWithRoleFunc: func(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
			return nil, errors.New("connection refused")
		},
	}
	step := &entity.ApprovalStep{Level: 1, RequiredRole: entity.RoleManager}

	pool, err := NewMaterializer(dir, &mockLogger{}).ResolvePool(context.Background(), "company-1", step)

	assert.Nil(t, pool)
	assert.True(t, errors.Is(err, entity.ErrUnavailable))
}

func TestMaterializer_UnstaffedLevels(t *testing.T) {
	dir := &mockDirectory{
		usersWithRoleFunc: func(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
			if role == entity.RoleManager {
				return []string{"m1"}, nil
			}
			return nil, nil
		},
	}
	logger := &mockLogger{}
	req := &entity.ApprovalRequest{
		ID:        "req-1",
		CompanyID: "company-1",
		Steps: []*entity.ApprovalStep{
			{Level: 1, RequiredRole: entity.RoleManager},
			{Level: 2, RequiredRole: entity.RoleOwner},
			{Level: 3, RequiredRole: entity.RoleOwner},
		},
	}

	levels, err := NewMaterializer(dir, logger).UnstaffedLevels(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, levels)
	assert.Equal(t, 2, dir.calls, "roles are resolved once per request")
	assert.Len(t, logger.warnings, 1)
}
