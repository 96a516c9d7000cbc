package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type engineImpl struct {
	requestRepo port.RequestRepository
	actionRepo  port.ActionRepository
	txManager   port.TransactionManager
	pools       PoolResolver
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the dispatcher that receives committed transitions
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requestRepo port.RequestRepository,
	actionRepo port.ActionRepository,
	txManager port.TransactionManager,
	pools PoolResolver,
	logger Logger,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		requestRepo: requestRepo,
		actionRepo:  actionRepo,
		txManager:   txManager,
		pools:       pools,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) ApproveStep(ctx context.Context, requestID, approverID, comments string, opts ...ActionOption) (*Transition, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, fmt.Errorf("%w: approver id is required", entity.ErrInvalidArgument)
	}

	target, err := e.authorize(ctx, requestID, approverID, ExpectedLevel(opts...))
	if err != nil {
		e.logFailure("approve", requestID, approverID, err)
		return nil, err
	}

	var result *Transition
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, step, err := e.lockStep(txCtx, requestID, target)
		if err != nil {
			return err
		}

		from := req.Status
		to, err := domainwf.NewRequestMachine(req).Fire(txCtx, domainwf.TriggerApprove)
		if err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidState, err)
		}

		now := e.now()
		step.Status = entity.StepStatusApproved
		step.ApproverID = approverID
		step.Comments = comments
		step.ActedAt = &now

		eventType := event.TypeStepApproved
		if to == domainwf.StateApproved {
			req.Status = entity.RequestStatusApproved
			req.CompletedAt = &now
			eventType = event.TypeRequestApproved
		}

		if err := e.requestRepo.Update(txCtx, req, []*entity.ApprovalStep{step}); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if err := e.record(txCtx, req, step, entity.ActionApproved, approverID, from, comments, now); err != nil {
			return err
		}

		result = &Transition{Request: req, Step: step, FromStatus: from, EventType: eventType, ActorID: approverID}
		return nil
	})
	if err != nil {
		e.logFailure("approve", requestID, approverID, err)
		return nil, err
	}

	e.logger.Info("Step approved",
		"request_id", requestID,
		"level", result.Step.Level,
		"actor_id", approverID,
		"new_status", result.Request.Status,
	)
	e.emit(ctx, result, map[string]interface{}{
		"level": result.Step.Level,
		"role":  result.Step.RequiredRole.String(),
	})
	return result, nil
}

func (e *engineImpl) RejectStep(ctx context.Context, requestID, approverID, reason string, opts ...ActionOption) (*Transition, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, fmt.Errorf("%w: approver id is required", entity.ErrInvalidArgument)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", entity.ErrInvalidArgument)
	}

	target, err := e.authorize(ctx, requestID, approverID, ExpectedLevel(opts...))
	if err != nil {
		e.logFailure("reject", requestID, approverID, err)
		return nil, err
	}

	var result *Transition
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, step, err := e.lockStep(txCtx, requestID, target)
		if err != nil {
			return err
		}

		from := req.Status
		if _, err := domainwf.NewRequestMachine(req).Fire(txCtx, domainwf.TriggerReject); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidState, err)
		}

		now := e.now()
		step.Status = entity.StepStatusRejected
		step.ApproverID = approverID
		step.Comments = reason
		step.ActedAt = &now

		changed := []*entity.ApprovalStep{step}
		for _, later := range req.StepsAbove(step.Level) {
			later.Status = entity.StepStatusSkipped
			changed = append(changed, later)
		}

		req.Status = entity.RequestStatusRejected
		req.RejectReason = reason
		req.CompletedAt = &now

		if err := e.requestRepo.Update(txCtx, req, changed); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if err := e.record(txCtx, req, step, entity.ActionRejected, approverID, from, reason, now); err != nil {
			return err
		}

		result = &Transition{Request: req, Step: step, FromStatus: from, EventType: event.TypeRequestRejected, ActorID: approverID}
		return nil
	})
	if err != nil {
		e.logFailure("reject", requestID, approverID, err)
		return nil, err
	}

	e.logger.Info("Request rejected",
		"request_id", requestID,
		"level", result.Step.Level,
		"actor_id", approverID,
	)
	e.emit(ctx, result, map[string]interface{}{
		"level":  result.Step.Level,
		"reason": reason,
	})
	return result, nil
}

func (e *engineImpl) CancelRequest(ctx context.Context, requestID, requesterID, reason string) (*Transition, error) {
	var result *Transition
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.requestRepo.GetForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != entity.RequestStatusPending {
			return fmt.Errorf("%w: request %s is %s", entity.ErrInvalidState, req.ID, req.Status)
		}
		if req.RequestedBy != requesterID {
			return fmt.Errorf("%w: only the requester may cancel request %s", entity.ErrUnauthorized, req.ID)
		}

		from := req.Status
		if _, err := domainwf.NewRequestMachine(req).Fire(txCtx, domainwf.TriggerCancel); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidState, err)
		}

		now := e.now()
		req.Status = entity.RequestStatusCancelled
		req.CancelReason = reason
		req.CompletedAt = &now

		// step records keep their state on cancellation
		if err := e.requestRepo.Update(txCtx, req, nil); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if err := e.record(txCtx, req, nil, entity.ActionCancelled, requesterID, from, reason, now); err != nil {
			return err
		}

		result = &Transition{Request: req, FromStatus: from, EventType: event.TypeRequestCancelled, ActorID: requesterID}
		return nil
	})
	if err != nil {
		e.logFailure("cancel", requestID, requesterID, err)
		return nil, err
	}

	e.logger.Info("Request cancelled", "request_id", requestID, "actor_id", requesterID)
	e.emit(ctx, result, map[string]interface{}{"reason": reason})
	return result, nil
}

// authorize checks, without holding any lock, that approverID may decide the
// current step of the request. The directory lookup (and its retries) happens
// here so that no transaction stays open while the directory is slow.
// level, when non-zero, must be the current step's level.
func (e *engineImpl) authorize(ctx context.Context, requestID, approverID string, level int) (*entity.ApprovalStep, error) {
	req, err := e.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	step, err := currentStep(req, level)
	if err != nil {
		return nil, err
	}

	pool, err := e.pools.ResolvePool(ctx, req.CompanyID, step)
	if err != nil {
		return nil, err
	}
	if !pool.Contains(approverID) {
		return nil, fmt.Errorf("%w: user %s does not hold role %s in company %s",
			entity.ErrUnauthorized, approverID, step.RequiredRole, req.CompanyID)
	}
	return step, nil
}

// lockStep locks the request and verifies that the step authorized outside the
// transaction is still the current one. A concurrent decision that moved or
// closed the request makes this one fail with ErrInvalidState.
func (e *engineImpl) lockStep(ctx context.Context, requestID string, target *entity.ApprovalStep) (*entity.ApprovalRequest, *entity.ApprovalStep, error) {
	req, err := e.requestRepo.GetForUpdate(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	step, err := currentStep(req, target.Level)
	if err != nil {
		return nil, nil, err
	}
	if step.ID != target.ID {
		return nil, nil, fmt.Errorf("%w: request %s step %s is no longer current", entity.ErrInvalidState, req.ID, target.ID)
	}
	return req, step, nil
}

func currentStep(req *entity.ApprovalRequest, level int) (*entity.ApprovalStep, error) {
	if req.Status != entity.RequestStatusPending {
		return nil, fmt.Errorf("%w: request %s is %s", entity.ErrInvalidState, req.ID, req.Status)
	}
	step := req.CurrentStep()
	if step == nil {
		return nil, fmt.Errorf("%w: request %s has no pending step", entity.ErrInvalidState, req.ID)
	}
	if level > 0 && step.Level != level {
		return nil, fmt.Errorf("%w: request %s is at level %d, not %d", entity.ErrInvalidState, req.ID, step.Level, level)
	}
	return step, nil
}

func (e *engineImpl) record(
	ctx context.Context,
	req *entity.ApprovalRequest,
	step *entity.ApprovalStep,
	action entity.ActionType,
	actorID string,
	from entity.RequestStatus,
	comment string,
	at time.Time,
) error {
	entry := &entity.ApprovalAction{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		Action:     action,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   req.Status,
		Comment:    comment,
		CreatedAt:  at,
	}
	if step != nil {
		entry.StepID = step.ID
	}

	if err := e.actionRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("record %s action: %w", action, err)
	}
	return nil
}

// emit publishes a committed transition. Handler failures are logged only:
// the transition is already durable.
func (e *engineImpl) emit(ctx context.Context, t *Transition, payload map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}

	if t.EventType.IsTerminal() {
		if payload == nil {
			payload = make(map[string]interface{}, 1)
		}
		payload["submitted_at"] = t.Request.SubmittedAt
	}

	evt := event.NewEvent(t.EventType, t.Request, t.ActorID, payload)
	if err := e.dispatcher.Dispatch(ctx, evt); err != nil {
		e.logger.Error("Failed to dispatch transition event",
			"request_id", t.Request.ID,
			"event_type", t.EventType,
			"error", err,
		)
	}
}

func (e *engineImpl) logFailure(op, requestID, actorID string, err error) {
	// expected business outcomes are not errors worth alerting on
	if errors.Is(err, entity.ErrInvalidState) || errors.Is(err, entity.ErrUnauthorized) ||
		errors.Is(err, entity.ErrNotFound) || errors.Is(err, entity.ErrInvalidArgument) {
		e.logger.Info("Request action refused", "op", op, "request_id", requestID, "actor_id", actorID, "reason", err.Error())
		return
	}
	e.logger.Error("Request action failed", "op", op, "request_id", requestID, "actor_id", actorID, "error", err)
}
