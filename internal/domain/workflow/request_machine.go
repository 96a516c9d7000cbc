package workflow

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// NewRequestMachine builds the lifecycle machine for one request.
//
//	pending --APPROVE--> pending    (more steps remain)
//	pending --APPROVE--> approved   (last step)
//	pending --REJECT---> rejected
//	pending --CANCEL---> cancelled
//
// approved, rejected and cancelled are terminal.
func NewRequestMachine(req *entity.ApprovalRequest) StateMachine {
	lastStep := func(ctx context.Context) bool {
		current := req.CurrentStep()
		return current != nil && req.IsLastPendingStep(current)
	}
	moreSteps := func(ctx context.Context) bool {
		current := req.CurrentStep()
		return current != nil && !req.IsLastPendingStep(current)
	}

	builder := NewBuilder()
	builder.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, lastStep).
		PermitIf(TriggerApprove, StatePending, moreSteps).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCancel, StateCancelled)

	return builder.Build(FromStatus(req.Status))
}
