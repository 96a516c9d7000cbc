package service

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// NotificationService turns committed transitions into outbound notifications
type NotificationService interface {
	// Register subscribes the service to every event type on d
	Register(d dispatcher.Dispatcher)

	// Notify resolves the recipients of evt and publishes it
	Notify(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	requestRepo port.RequestRepository
	pools       workflow.PoolResolver
	publisher   port.EventPublisher
	logger      Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	requestRepo port.RequestRepository,
	pools workflow.PoolResolver,
	publisher port.EventPublisher,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		requestRepo: requestRepo,
		pools:       pools,
		publisher:   publisher,
		logger:      logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("notification", s.Notify)
}

// Notify attaches a "recipients" payload entry: the approvers of the next
// step while the request is pending, the requester once it is closed
func (s *notificationServiceImpl) Notify(ctx context.Context, evt *event.Event) error {
	recipients, err := s.recipients(ctx, evt)
	if err != nil {
		// The event still goes out; consumers can resolve recipients themselves.
		s.logger.Warn("Failed to resolve notification recipients",
			"event_type", evt.Type,
			"request_id", evt.RequestID,
			"error", err,
		)
	}

	out := evt.WithPayload("recipients", recipients)
	if err := s.publisher.Publish(ctx, out); err != nil {
		s.logger.Error("Failed to publish notification",
			"event_type", evt.Type,
			"request_id", evt.RequestID,
			"error", err,
		)
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	s.logger.Info("Notification published",
		"event_type", evt.Type,
		"request_id", evt.RequestID,
		"recipients", len(recipients),
	)
	return nil
}

func (s *notificationServiceImpl) recipients(ctx context.Context, evt *event.Event) ([]string, error) {
	req, err := s.requestRepo.GetByID(ctx, evt.RequestID)
	if err != nil {
		return []string{}, err
	}

	if evt.Type.IsTerminal() {
		return []string{req.RequestedBy}, nil
	}

	step := req.CurrentStep()
	if step == nil {
		return []string{}, nil
	}

	pool, err := s.pools.ResolvePool(ctx, req.CompanyID, step)
	if err != nil {
		return []string{}, err
	}
	if pool.Empty() {
		s.logger.Warn("Next step has no eligible approver",
			"request_id", req.ID,
			"level", step.Level,
			"role", step.RequiredRole,
		)
	}
	return append([]string{}, pool.UserIDs...), nil
}
