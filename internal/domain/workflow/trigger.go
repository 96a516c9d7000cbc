package workflow

// Trigger represents an action that can move a request between states
type Trigger string

const (
	// TriggerApprove records an approval on the current step.
	// The request stays pending while steps remain and becomes approved on the last one.
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerCancel  Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
