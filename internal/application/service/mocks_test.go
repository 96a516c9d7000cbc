package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Mock implementations

type mockChainRepo struct {
	mu     sync.Mutex
	chains map[string]*entity.ApprovalChain

	createFunc       func(ctx context.Context, chain *entity.ApprovalChain) error
	isReferencedFunc func(ctx context.Context, id string) (bool, error)
}

func newMockChainRepo(chains ...*entity.ApprovalChain) *mockChainRepo {
	m := &mockChainRepo{chains: make(map[string]*entity.ApprovalChain)}
	for _, c := range chains {
		copied := *c
		m.chains[c.ID] = &copied
	}
	return m
}

func (m *mockChainRepo) Create(ctx context.Context, chain *entity.ApprovalChain) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, chain)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *chain
	m.chains[chain.ID] = &copied
	return nil
}

func (m *mockChainRepo) Update(ctx context.Context, chain *entity.ApprovalChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chains[chain.ID]; !ok {
		return fmt.Errorf("chain %s: %w", chain.ID, entity.ErrNotFound)
	}
	copied := *chain
	m.chains[chain.ID] = &copied
	return nil
}

func (m *mockChainRepo) GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chains[id]
	if !ok || c.CompanyID != companyID {
		return nil, fmt.Errorf("chain %s: %w", id, entity.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *mockChainRepo) ListByCompany(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalChain
	for _, c := range m.chains {
		if c.CompanyID == companyID && (includeInactive || c.IsActive) {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockChainRepo) FindActive(ctx context.Context, companyID string, entityType entity.EntityType) ([]*entity.ApprovalChain, error) {
	all, _ := m.ListByCompany(ctx, companyID, false)
	var out []*entity.ApprovalChain
	for _, c := range all {
		if c.EntityType == entityType {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockChainRepo) Delete(ctx context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chains, id)
	return nil
}

func (m *mockChainRepo) IsReferenced(ctx context.Context, id string) (bool, error) {
	if m.isReferencedFunc != nil {
		return m.isReferencedFunc(ctx, id)
	}
	return false, nil
}

type mockRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*entity.ApprovalRequest

	createFunc func(ctx context.Context, req *entity.ApprovalRequest) error
	listFunc   func(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error)
	lastFilter port.RequestFilter
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]*entity.ApprovalRequest)}
}

func copyRequest(r *entity.ApprovalRequest) *entity.ApprovalRequest {
	c := *r
	c.Steps = make([]*entity.ApprovalStep, len(r.Steps))
	for i, s := range r.Steps {
		sc := *s
		c.Steps[i] = &sc
	}
	return &c
}

func (m *mockRequestRepo) put(r *entity.ApprovalRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = copyRequest(r)
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	m.put(req)
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, entity.ErrNotFound)
	}
	return copyRequest(r), nil
}

func (m *mockRequestRepo) GetForUpdate(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRequestRepo) Update(ctx context.Context, req *entity.ApprovalRequest, steps []*entity.ApprovalStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[req.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", req.ID, entity.ErrNotFound)
	}
	if stored.Version != req.Version {
		return fmt.Errorf("%w: request %s was modified concurrently", entity.ErrInvalidState, req.ID)
	}
	req.Version++
	m.requests[req.ID] = copyRequest(req)
	return nil
}

func (m *mockRequestRepo) FindPendingByEntity(ctx context.Context, companyID string, entityType entity.EntityType, entityID string) (*entity.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.CompanyID == companyID && r.ApprovableType == entityType &&
			r.ApprovableID == entityID && r.Status == entity.RequestStatusPending {
			return copyRequest(r), nil
		}
	}
	return nil, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	m.lastFilter = filter
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalRequest
	for _, r := range m.requests {
		if r.CompanyID == filter.CompanyID && (filter.Status == "" || r.Status == filter.Status) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (m *mockRequestRepo) CountPending(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range m.requests {
		if r.Status == entity.RequestStatusPending {
			counts[r.CompanyID]++
		}
	}
	return counts, nil
}

func (m *mockRequestRepo) ListPendingByCurrentRole(ctx context.Context, companyID string, roles []entity.Role) ([]*entity.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalRequest
	for _, r := range m.requests {
		if r.CompanyID != companyID {
			continue
		}
		step := r.CurrentStep()
		if step == nil {
			continue
		}
		for _, role := range roles {
			if step.RequiredRole == role {
				out = append(out, copyRequest(r))
				break
			}
		}
	}
	return out, nil
}

type mockActionRepo struct {
	mu      sync.Mutex
	actions []*entity.ApprovalAction
}

func (m *mockActionRepo) Create(ctx context.Context, action *entity.ApprovalAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *action
	m.actions = append(m.actions, &copied)
	return nil
}

func (m *mockActionRepo) ListByRequest(ctx context.Context, requestID string) ([]*entity.ApprovalAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalAction
	for _, a := range m.actions {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// mockDirectory maps company -> role -> users
type mockDirectory struct {
	members map[string]map[entity.Role][]string
	err     error
}

func (m *mockDirectory) UsersWithRole(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.members[companyID][role], nil
}

func (m *mockDirectory) MembershipsOf(ctx context.Context, userID string) ([]entity.Membership, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []entity.Membership
	for companyID, roles := range m.members {
		for role, users := range roles {
			for _, u := range users {
				if u == userID {
					out = append(out, entity.Membership{CompanyID: companyID, UserID: userID, Role: role})
				}
			}
		}
	}
	return out, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []*event.Event
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, evt)
	return nil
}

type mockLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}
