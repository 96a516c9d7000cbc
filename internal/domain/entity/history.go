package entity

import "time"

// ApprovalAction is one entry in the append-only audit trail of a request
type ApprovalAction struct {
	ID         string        `json:"id"`
	RequestID  string        `json:"request_id"`
	StepID     string        `json:"step_id,omitempty"`
	Action     ActionType    `json:"action"`
	ActorID    string        `json:"actor_id"`
	FromStatus RequestStatus `json:"from_status,omitempty"`
	ToStatus   RequestStatus `json:"to_status"`
	Comment    string        `json:"comment,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}
