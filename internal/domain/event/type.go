package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestSubmitted Type = "request.submitted"
	TypeStepApproved     Type = "request.step_approved"
	TypeRequestApproved  Type = "request.approved"
	TypeRequestRejected  Type = "request.rejected"
	TypeRequestCancelled Type = "request.cancelled"
)

// AllTypes lists every event the engine emits
func AllTypes() []Type {
	return []Type{
		TypeRequestSubmitted,
		TypeStepApproved,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestCancelled,
	}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestSubmitted,
		TypeStepApproved,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event closes a request
func (t Type) IsTerminal() bool {
	return t == TypeRequestApproved || t == TypeRequestRejected || t == TypeRequestCancelled
}
