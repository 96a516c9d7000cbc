package http

import (
	"context"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/routing"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

type mockWorkflowService struct {
	submitFunc    func(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	approveFunc   func(ctx context.Context, requestID, approverID, comments string, level int) (*entity.ApprovalRequest, error)
	rejectFunc    func(ctx context.Context, requestID, approverID, reason string, level int) (*entity.ApprovalRequest, error)
	cancelFunc    func(ctx context.Context, requestID, requesterID, reason string) (*entity.ApprovalRequest, error)
	pendingFunc   func(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error)
	getFunc       func(ctx context.Context, companyID, requestID string) (*entity.ApprovalRequest, error)
	listFunc      func(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error)
	historyFunc   func(ctx context.Context, companyID, requestID string) ([]*entity.ApprovalAction, error)
	approversFunc func(ctx context.Context, companyID, requestID string) (*routing.ApproverPool, error)
	exportFunc    func(ctx context.Context, filter port.RequestFilter) (*service.Report, error)
}

func (m *mockWorkflowService) SubmitForApproval(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error) {
	return m.submitFunc(ctx, in)
}

func (m *mockWorkflowService) ApproveStep(ctx context.Context, requestID, approverID, comments string, opts ...workflow.ActionOption) (*entity.ApprovalRequest, error) {
	return m.approveFunc(ctx, requestID, approverID, comments, workflow.ExpectedLevel(opts...))
}

func (m *mockWorkflowService) RejectStep(ctx context.Context, requestID, approverID, reason string, opts ...workflow.ActionOption) (*entity.ApprovalRequest, error) {
	return m.rejectFunc(ctx, requestID, approverID, reason, workflow.ExpectedLevel(opts...))
}

func (m *mockWorkflowService) CancelRequest(ctx context.Context, requestID, requesterID, reason string) (*entity.ApprovalRequest, error) {
	return m.cancelFunc(ctx, requestID, requesterID, reason)
}

func (m *mockWorkflowService) GetPendingApprovalsForUser(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error) {
	return m.pendingFunc(ctx, userID)
}

func (m *mockWorkflowService) GetRequest(ctx context.Context, companyID, requestID string) (*entity.ApprovalRequest, error) {
	if m.getFunc == nil {
		return &entity.ApprovalRequest{ID: requestID, CompanyID: companyID}, nil
	}
	return m.getFunc(ctx, companyID, requestID)
}

func (m *mockWorkflowService) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockWorkflowService) History(ctx context.Context, companyID, requestID string) ([]*entity.ApprovalAction, error) {
	return m.historyFunc(ctx, companyID, requestID)
}

func (m *mockWorkflowService) CurrentApprovers(ctx context.Context, companyID, requestID string) (*routing.ApproverPool, error) {
	return m.approversFunc(ctx, companyID, requestID)
}

func (m *mockWorkflowService) ExportRequests(ctx context.Context, filter port.RequestFilter) (*service.Report, error) {
	return m.exportFunc(ctx, filter)
}

type mockChainService struct {
	listFunc       func(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error)
	getFunc        func(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error)
	createFunc     func(ctx context.Context, companyID string, in service.ChainInput) (*entity.ApprovalChain, error)
	updateFunc     func(ctx context.Context, companyID, chainID string, in service.ChainInput) (*entity.ApprovalChain, error)
	deactivateFunc func(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error)
	deleteFunc     func(ctx context.Context, companyID, chainID string) error
}

func (m *mockChainService) ListChains(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error) {
	return m.listFunc(ctx, companyID, includeInactive)
}

func (m *mockChainService) GetChain(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error) {
	return m.getFunc(ctx, companyID, chainID)
}

func (m *mockChainService) CreateChain(ctx context.Context, companyID string, in service.ChainInput) (*entity.ApprovalChain, error) {
	return m.createFunc(ctx, companyID, in)
}

func (m *mockChainService) UpdateChain(ctx context.Context, companyID, chainID string, in service.ChainInput) (*entity.ApprovalChain, error) {
	return m.updateFunc(ctx, companyID, chainID, in)
}

func (m *mockChainService) DeactivateChain(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error) {
	return m.deactivateFunc(ctx, companyID, chainID)
}

func (m *mockChainService) DeleteChain(ctx context.Context, companyID, chainID string) error {
	return m.deleteFunc(ctx, companyID, chainID)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
