// Package workflow drives approval requests through their lifecycle:
// step approvals, rejection and cancellation, one transaction per request.
package workflow

import (
	"context"

	"github.com/garyjia/approval-engine/internal/application/routing"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// WorkflowEngine applies approver and requester actions to pending requests.
// Every method either commits a complete transition or leaves the request untouched.
type WorkflowEngine interface {
	// ApproveStep approves the current step on behalf of approverID
	ApproveStep(ctx context.Context, requestID, approverID, comments string, opts ...ActionOption) (*Transition, error)

	// RejectStep rejects the current step and closes the request; reason is mandatory
	RejectStep(ctx context.Context, requestID, approverID, reason string, opts ...ActionOption) (*Transition, error)

	// CancelRequest withdraws a pending request; only its requester may do so
	CancelRequest(ctx context.Context, requestID, requesterID, reason string) (*Transition, error)
}

// ActionOption narrows which step an approver decision applies to
type ActionOption func(*actionOptions)

type actionOptions struct {
	level int
}

// AtLevel pins a decision to the step at level. If that step is no longer
// current when the decision is applied, the call fails with entity.ErrInvalidState.
// Zero accepts whichever step is current.
func AtLevel(level int) ActionOption {
	return func(o *actionOptions) {
		o.level = level
	}
}

// ExpectedLevel returns the level pinned by opts, or 0
func ExpectedLevel(opts ...ActionOption) int {
	var o actionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.level
}

// PoolResolver resolves who may act on a step right now
type PoolResolver interface {
	ResolvePool(ctx context.Context, companyID string, step *entity.ApprovalStep) (*routing.ApproverPool, error)
}

// Transition describes a committed change
type Transition struct {
	Request    *entity.ApprovalRequest
	Step       *entity.ApprovalStep // nil for cancellation
	FromStatus entity.RequestStatus
	EventType  event.Type
	ActorID    string
}
