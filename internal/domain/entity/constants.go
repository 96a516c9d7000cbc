package entity

// EntityType identifies the kind of business record routed through approval
type EntityType string

const (
	EntityTypeExpense   EntityType = "expense"
	EntityTypeQuotation EntityType = "quotation"
	EntityTypePayment   EntityType = "payment"
)

// IsValid reports whether the entity type is one of the known types
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeExpense, EntityTypeQuotation, EntityTypePayment:
		return true
	default:
		return false
	}
}

// String returns the string representation of the entity type
func (t EntityType) String() string {
	return string(t)
}

// Role is a company-scoped role that can be asked to approve a step
type Role string

const (
	RoleOwner      Role = "owner"
	RoleManager    Role = "manager"
	RoleAccountant Role = "accountant"
)

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleAccountant:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// RequestStatus is the lifecycle status of an ApprovalRequest
type RequestStatus string

// Status constants for ApprovalRequest
const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// IsValid reports whether the status is a known request status
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once no further transition is possible
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// StepStatus is the status of a single ApprovalStep
type StepStatus string

// Status constants for ApprovalStep
const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

// ActionType records what happened in an audit trail entry
type ActionType string

// Action constants for ApprovalAction
const (
	ActionSubmitted ActionType = "submitted"
	ActionApproved  ActionType = "approved"
	ActionRejected  ActionType = "rejected"
	ActionCancelled ActionType = "cancelled"
)
