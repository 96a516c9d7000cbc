package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStepRequest() *ApprovalRequest {
	return &ApprovalRequest{
		ID:     "req-1",
		Status: RequestStatusPending,
		Steps: []*ApprovalStep{
			{ID: "s2", Level: 2, RequiredRole: RoleOwner, Status: StepStatusPending},
			{ID: "s1", Level: 1, RequiredRole: RoleManager, Status: StepStatusPending},
			{ID: "s3", Level: 3, RequiredRole: RoleAccountant, Status: StepStatusPending},
		},
	}
}

func TestApprovalRequest_CurrentStep(t *testing.T) {
	req := threeStepRequest()

	current := req.CurrentStep()
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Level)

	current.Status = StepStatusApproved
	current = req.CurrentStep()
	require.NotNil(t, current)
	assert.Equal(t, 2, current.Level)
	assert.Equal(t, RoleOwner, current.RequiredRole)
}

func TestApprovalRequest_CurrentStep_NotPending(t *testing.T) {
	req := threeStepRequest()
	req.Status = RequestStatusCancelled

	assert.Nil(t, req.CurrentStep())
}

func TestApprovalRequest_IsLastPendingStep(t *testing.T) {
	req := threeStepRequest()
	first := req.CurrentStep()
	assert.False(t, req.IsLastPendingStep(first))

	for _, s := range req.Steps {
		if s.Level < 3 {
			s.Status = StepStatusApproved
		}
	}
	assert.True(t, req.IsLastPendingStep(req.CurrentStep()))
}

func TestApprovalRequest_StepsAbove(t *testing.T) {
	req := threeStepRequest()

	above := req.StepsAbove(1)

	assert.Len(t, above, 2)
	for _, s := range above {
		assert.Greater(t, s.Level, 1)
	}
	assert.Empty(t, req.StepsAbove(3))
}

func TestRequestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status RequestStatus
		want   bool
	}{
		{RequestStatusPending, false},
		{RequestStatusApproved, true},
		{RequestStatusRejected, true},
		{RequestStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestEnums_IsValid(t *testing.T) {
	assert.True(t, EntityTypeQuotation.IsValid())
	assert.False(t, EntityType("invoice").IsValid())
	assert.True(t, RoleAccountant.IsValid())
	assert.False(t, Role("admin").IsValid())
	assert.True(t, RequestStatusCancelled.IsValid())
	assert.False(t, RequestStatus("draft").IsValid())
}
