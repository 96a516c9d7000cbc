package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/routing"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SubmitInput describes an approvable entity handed over by the owning module
type SubmitInput struct {
	CompanyID   string            `json:"company_id"`
	EntityType  entity.EntityType `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	Amount      decimal.Decimal   `json:"amount"`
	RequestedBy string            `json:"requested_by"`
}

// Validate checks the submission for missing or malformed fields
func (in SubmitInput) Validate() error {
	switch {
	case strings.TrimSpace(in.CompanyID) == "":
		return fmt.Errorf("%w: company_id is required", entity.ErrInvalidArgument)
	case !in.EntityType.IsValid():
		return fmt.Errorf("%w: unknown entity type %q", entity.ErrInvalidArgument, in.EntityType)
	case strings.TrimSpace(in.EntityID) == "":
		return fmt.Errorf("%w: entity_id is required", entity.ErrInvalidArgument)
	case strings.TrimSpace(in.RequestedBy) == "":
		return fmt.Errorf("%w: requested_by is required", entity.ErrInvalidArgument)
	case in.Amount.IsNegative():
		return fmt.Errorf("%w: amount must not be negative", entity.ErrInvalidArgument)
	}
	return nil
}

// SubmitResult is the created request plus levels nobody can currently approve
type SubmitResult struct {
	Request         *entity.ApprovalRequest `json:"request"`
	UnstaffedLevels []int                   `json:"unstaffed_levels,omitempty"`
}

// Report is a rendered export ready to be sent to a client
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

// WorkflowService is the facade other modules use to route entities through approval
type WorkflowService interface {
	SubmitForApproval(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	ApproveStep(ctx context.Context, requestID, approverID, comments string, opts ...workflow.ActionOption) (*entity.ApprovalRequest, error)
	RejectStep(ctx context.Context, requestID, approverID, reason string, opts ...workflow.ActionOption) (*entity.ApprovalRequest, error)
	CancelRequest(ctx context.Context, requestID, requesterID, reason string) (*entity.ApprovalRequest, error)
	GetPendingApprovalsForUser(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error)

	GetRequest(ctx context.Context, companyID, requestID string) (*entity.ApprovalRequest, error)
	ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error)
	History(ctx context.Context, companyID, requestID string) ([]*entity.ApprovalAction, error)

	// CurrentApprovers reports who may act on the current step; an empty pool
	// means the request has no eligible approver right now
	CurrentApprovers(ctx context.Context, companyID, requestID string) (*routing.ApproverPool, error)

	ExportRequests(ctx context.Context, filter port.RequestFilter) (*Report, error)
}

type workflowServiceImpl struct {
	selector     *routing.Selector
	materializer *routing.Materializer
	engine       workflow.WorkflowEngine
	requestRepo  port.RequestRepository
	actionRepo   port.ActionRepository
	directory    port.RoleDirectory
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	exporter     port.RequestExporter
	logger       Logger
}

// WorkflowDeps groups the collaborators of the workflow service
type WorkflowDeps struct {
	Selector     *routing.Selector
	Materializer *routing.Materializer
	Engine       workflow.WorkflowEngine
	Requests     port.RequestRepository
	Actions      port.ActionRepository
	Directory    port.RoleDirectory
	TxManager    port.TransactionManager
	Dispatcher   dispatcher.Dispatcher
	Exporter     port.RequestExporter
	Logger       Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(deps WorkflowDeps) WorkflowService {
	return &workflowServiceImpl{
		selector:     deps.Selector,
		materializer: deps.Materializer,
		engine:       deps.Engine,
		requestRepo:  deps.Requests,
		actionRepo:   deps.Actions,
		directory:    deps.Directory,
		txManager:    deps.TxManager,
		dispatcher:   deps.Dispatcher,
		exporter:     deps.Exporter,
		logger:       deps.Logger,
	}
}

// SubmitForApproval selects the governing chain, materializes its steps and
// stores the new pending request
func (s *workflowServiceImpl) SubmitForApproval(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	chain, err := s.selector.Select(ctx, in.CompanyID, in.EntityType, in.Amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &entity.ApprovalRequest{
		ID:             uuid.NewString(),
		CompanyID:      in.CompanyID,
		ApprovableType: in.EntityType,
		ApprovableID:   in.EntityID,
		Amount:         in.Amount,
		Status:         entity.RequestStatusPending,
		RequestedBy:    in.RequestedBy,
		SubmittedAt:    now,
	}
	s.materializer.Materialize(chain, req)

	unstaffed, err := s.materializer.UnstaffedLevels(ctx, req)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.requestRepo.FindPendingByEntity(txCtx, in.CompanyID, in.EntityType, in.EntityID)
		if err != nil {
			return fmt.Errorf("check pending request: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: %s %s already has pending request %s",
				entity.ErrInvalidState, in.EntityType, in.EntityID, existing.ID)
		}

		if err := s.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		return s.actionRepo.Create(txCtx, &entity.ApprovalAction{
			ID:        uuid.NewString(),
			RequestID: req.ID,
			Action:    entity.ActionSubmitted,
			ActorID:   in.RequestedBy,
			ToStatus:  req.Status,
			CreatedAt: now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to submit request",
			"company_id", in.CompanyID,
			"entity_type", in.EntityType,
			"entity_id", in.EntityID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Request submitted",
		"request_id", req.ID,
		"company_id", req.CompanyID,
		"chain_id", chain.ID,
		"steps", len(req.Steps),
	)
	s.emit(ctx, event.NewEvent(event.TypeRequestSubmitted, req, in.RequestedBy, map[string]interface{}{
		"chain_id":         chain.ID,
		"entity_type":      in.EntityType.String(),
		"entity_id":        in.EntityID,
		"amount":           in.Amount.String(),
		"unstaffed_levels": unstaffed,
	}))

	return &SubmitResult{Request: req, UnstaffedLevels: unstaffed}, nil
}

func (s *workflowServiceImpl) ApproveStep(ctx context.Context, requestID, approverID, comments string, opts ...workflow.ActionOption) (*entity.ApprovalRequest, error) {
	t, err := s.engine.ApproveStep(ctx, requestID, approverID, comments, opts...)
	if err != nil {
		return nil, err
	}
	return t.Request, nil
}

func (s *workflowServiceImpl) RejectStep(ctx context.Context, requestID, approverID, reason string, opts ...workflow.ActionOption) (*entity.ApprovalRequest, error) {
	t, err := s.engine.RejectStep(ctx, requestID, approverID, reason, opts...)
	if err != nil {
		return nil, err
	}
	return t.Request, nil
}

func (s *workflowServiceImpl) CancelRequest(ctx context.Context, requestID, requesterID, reason string) (*entity.ApprovalRequest, error) {
	t, err := s.engine.CancelRequest(ctx, requestID, requesterID, reason)
	if err != nil {
		return nil, err
	}
	return t.Request, nil
}

// GetPendingApprovalsForUser lists pending requests whose current step needs
// a role the user holds in the request's company
func (s *workflowServiceImpl) GetPendingApprovalsForUser(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error) {
	memberships, err := s.directory.MembershipsOf(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load memberships", "actor_id", userID, "error", err)
		return nil, fmt.Errorf("memberships of %s: %w", userID, err)
	}

	rolesByCompany := make(map[string][]entity.Role)
	for _, m := range memberships {
		rolesByCompany[m.CompanyID] = append(rolesByCompany[m.CompanyID], m.Role)
	}

	companies := make([]string, 0, len(rolesByCompany))
	for companyID := range rolesByCompany {
		companies = append(companies, companyID)
	}
	sort.Strings(companies)

	var pending []*entity.ApprovalRequest
	for _, companyID := range companies {
		reqs, err := s.requestRepo.ListPendingByCurrentRole(ctx, companyID, rolesByCompany[companyID])
		if err != nil {
			return nil, fmt.Errorf("pending requests for company %s: %w", companyID, err)
		}
		pending = append(pending, reqs...)
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
	})
	return pending, nil
}

func (s *workflowServiceImpl) GetRequest(ctx context.Context, companyID, requestID string) (*entity.ApprovalRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.CompanyID != companyID {
		return nil, fmt.Errorf("request %s: %w", requestID, entity.ErrNotFound)
	}
	return req, nil
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
	maxExportRows    = 10000
)

func (s *workflowServiceImpl) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	if err := validateFilter(&filter); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultListLimit
	}
	return s.requestRepo.List(ctx, filter)
}

func validateFilter(filter *port.RequestFilter) error {
	if strings.TrimSpace(filter.CompanyID) == "" {
		return fmt.Errorf("%w: company_id is required", entity.ErrInvalidArgument)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", entity.ErrInvalidArgument, filter.Status)
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return nil
}

func (s *workflowServiceImpl) History(ctx context.Context, companyID, requestID string) ([]*entity.ApprovalAction, error) {
	if _, err := s.GetRequest(ctx, companyID, requestID); err != nil {
		return nil, err
	}
	return s.actionRepo.ListByRequest(ctx, requestID)
}

func (s *workflowServiceImpl) CurrentApprovers(ctx context.Context, companyID, requestID string) (*routing.ApproverPool, error) {
	req, err := s.GetRequest(ctx, companyID, requestID)
	if err != nil {
		return nil, err
	}

	step := req.CurrentStep()
	if step == nil {
		return nil, fmt.Errorf("%w: request %s is %s", entity.ErrInvalidState, req.ID, req.Status)
	}

	pool, err := s.materializer.ResolvePool(ctx, req.CompanyID, step)
	if err != nil {
		return nil, err
	}
	if pool.Empty() {
		s.logger.Warn("No eligible approver for current step",
			"request_id", req.ID,
			"level", step.Level,
			"role", step.RequiredRole,
		)
	}
	return pool, nil
}

func (s *workflowServiceImpl) ExportRequests(ctx context.Context, filter port.RequestFilter) (*Report, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("%w: export is not configured", entity.ErrUnavailable)
	}
	if err := validateFilter(&filter); err != nil {
		return nil, err
	}
	filter.Limit = maxExportRows
	filter.Offset = 0

	reqs, err := s.requestRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(&buf, reqs); err != nil {
		s.logger.Error("Failed to export requests", "company_id", filter.CompanyID, "error", err)
		return nil, fmt.Errorf("export requests: %w", err)
	}

	return &Report{
		Filename:    fmt.Sprintf("approval-requests-%s-%s.%s", filter.CompanyID, time.Now().UTC().Format("20060102"), s.exporter.FileExtension()),
		ContentType: s.exporter.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

func (s *workflowServiceImpl) emit(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, evt); err != nil {
		s.logger.Error("Failed to dispatch event", "event_type", evt.Type, "request_id", evt.RequestID, "error", err)
	}
}
