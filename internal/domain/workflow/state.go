package workflow

import "github.com/garyjia/approval-engine/internal/domain/entity"

// State is a request lifecycle state as seen by the state machine
type State string

const (
	StatePending   State = State(entity.RequestStatusPending)
	StateApproved  State = State(entity.RequestStatusApproved)
	StateRejected  State = State(entity.RequestStatusRejected)
	StateCancelled State = State(entity.RequestStatusCancelled)
)

// FromStatus converts a persisted request status into a machine state
func FromStatus(status entity.RequestStatus) State {
	return State(status)
}

// Status converts the state back to the persisted request status
func (s State) Status() entity.RequestStatus {
	return entity.RequestStatus(s)
}

// IsTerminal returns true if no further transitions are allowed
func (s State) IsTerminal() bool {
	return s.Status().IsTerminal()
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known request state
func (s State) IsValid() bool {
	return s.Status().IsValid()
}
