package dispatcher

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Handler reacts to a committed request transition
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes one subscription. ListHandlers leaves Handler nil.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
