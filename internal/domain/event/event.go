package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Event is emitted after every committed request transition
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	RequestID string                 `json:"request_id"`
	CompanyID string                 `json:"company_id"`
	NewStatus entity.RequestStatus   `json:"new_status"`
	ActorID   string                 `json:"actor_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event describing req after a transition performed by actorID
func NewEvent(eventType Type, req *entity.ApprovalRequest, actorID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: req.ID,
		CompanyID: req.CompanyID,
		NewStatus: req.Status,
		ActorID:   actorID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// WithPayload returns a copy of the event with an extra payload entry
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	clone := *e
	clone.Payload = payload
	return &clone
}
