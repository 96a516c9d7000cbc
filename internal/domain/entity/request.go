package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalRequest is one submission of an approvable entity against a selected chain
type ApprovalRequest struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	ApprovableType EntityType      `json:"approvable_type"`
	ApprovableID   string          `json:"approvable_id"`
	Amount         decimal.Decimal `json:"amount"`
	ChainID        string          `json:"chain_id"`
	Status         RequestStatus   `json:"status"`
	RequestedBy    string          `json:"requested_by"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	Version        int64           `json:"version"`
	Steps          []*ApprovalStep `json:"steps,omitempty"`
}

// ApprovalStep is one materialized level of a request
type ApprovalStep struct {
	ID           string     `json:"id"`
	RequestID    string     `json:"request_id"`
	Level        int        `json:"level"`
	RequiredRole Role       `json:"required_role"`
	Status       StepStatus `json:"status"`
	ApproverID   string     `json:"approver_id,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	ActedAt      *time.Time `json:"acted_at,omitempty"`
}

// CurrentStep returns the lowest-level pending step, or nil when the request
// is no longer pending or every step has been acted on
func (r *ApprovalRequest) CurrentStep() *ApprovalStep {
	if r.Status != RequestStatusPending {
		return nil
	}

	var current *ApprovalStep
	for _, step := range r.Steps {
		if step.Status != StepStatusPending {
			continue
		}
		if current == nil || step.Level < current.Level {
			current = step
		}
	}
	return current
}

// IsLastPendingStep reports whether step is the only pending step left
func (r *ApprovalRequest) IsLastPendingStep(step *ApprovalStep) bool {
	for _, s := range r.Steps {
		if s.ID != step.ID && s.Status == StepStatusPending {
			return false
		}
	}
	return true
}

// StepsAbove returns the steps at a higher level than the given one
func (r *ApprovalRequest) StepsAbove(level int) []*ApprovalStep {
	var above []*ApprovalStep
	for _, s := range r.Steps {
		if s.Level > level {
			above = append(above, s)
		}
	}
	return above
}

// Membership is the directory's view of a user holding a role inside a company
type Membership struct {
	CompanyID string `json:"company_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
}
