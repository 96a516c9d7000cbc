package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/routing"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Mock implementations

type mockRequestRepo struct {
	mu        sync.Mutex
	requests  map[string]*entity.ApprovalRequest
	updateErr error

	// beforeLockFunc runs when GetForUpdate is called, before the row is read
	beforeLockFunc func()
}

func newMockRequestRepo(reqs ...*entity.ApprovalRequest) *mockRequestRepo {
	m := &mockRequestRepo{requests: make(map[string]*entity.ApprovalRequest)}
	for _, r := range reqs {
		m.requests[r.ID] = copyRequest(r)
	}
	return m
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

func (m *mockRequestRepo) stored(id string) *entity.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRequest(m.requests[id])
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = copyRequest(req)
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
	if m.beforeLockFunc != nil {
		m.beforeLockFunc()
	}
	return m.GetByID(ctx, id)
}

func (m *mockRequestRepo) Update(ctx context.Context, req *entity.ApprovalRequest, steps []*entity.ApprovalStep) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.requests[req.ID]
	if current.Version != req.Version {
		return fmt.Errorf("request %s: %w", req.ID, entity.ErrInvalidState)
	}
	req.Version++
	m.requests[req.ID] = copyRequest(req)
	return nil
}

func (m *mockRequestRepo) FindPendingByEntity(ctx context.Context, companyID string, entityType entity.EntityType, entityID string) (*entity.ApprovalRequest, error) {
	return nil, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	return nil, nil
}

func (m *mockRequestRepo) ListPendingByCurrentRole(ctx context.Context, companyID string, roles []entity.Role) ([]*entity.ApprovalRequest, error) {
	return nil, nil
}

func (m *mockRequestRepo) CountPending(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

type mockActionRepo struct {
	mu      sync.Mutex
	actions []*entity.ApprovalAction
}

func (m *mockActionRepo) Create(ctx context.Context, action *entity.ApprovalAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	return nil
}

func (m *mockActionRepo) ListByRequest(ctx context.Context, requestID string) ([]*entity.ApprovalAction, error) {
	return m.actions, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// staticPools maps a role to its holders; err simulates a directory outage
type staticPools struct {
	holders map[entity.Role][]string
	err     error
}

func (p *staticPools) ResolvePool(ctx context.Context, companyID string, step *entity.ApprovalStep) (*routing.ApproverPool, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &routing.ApproverPool{Level: step.Level, Role: step.RequiredRole, UserIDs: p.holders[step.RequiredRole]}, nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Fixtures

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func pendingRequest(roles ...entity.Role) *entity.ApprovalRequest {
	req := &entity.ApprovalRequest{
		ID:             "req-1",
		CompanyID:      "company-1",
		ApprovableType: entity.EntityTypeExpense,
		ApprovableID:   "exp-1",
		Amount:         decimal.NewFromInt(300),
		ChainID:        "chain-1",
		Status:         entity.RequestStatusPending,
		RequestedBy:    "U1",
		SubmittedAt:    fixedNow.Add(-time.Hour),
	}
	for i, role := range roles {
		req.Steps = append(req.Steps, &entity.ApprovalStep{
			ID:           fmt.Sprintf("step-%d", i+1),
			RequestID:    req.ID,
			Level:        i + 1,
			RequiredRole: role,
			Status:       entity.StepStatusPending,
		})
	}
	return req
}

type harness struct {
	engine   WorkflowEngine
	requests *mockRequestRepo
	actions  *mockActionRepo
	pools    *staticPools
	events   *recorder
}

func newHarness(req *entity.ApprovalRequest) *harness {
	h := &harness{
		requests: newMockRequestRepo(req),
		actions:  &mockActionRepo{},
		pools: &staticPools{holders: map[entity.Role][]string{
			entity.RoleManager: {"M1"},
			entity.RoleOwner:   {"O1"},
		}},
		events: &recorder{},
	}

	d := dispatcher.NewDispatcher()
	d.SubscribeAll("recorder", h.events.handle)

	h.engine = NewEngine(h.requests, h.actions, &mockTxManager{}, h.pools, &mockLogger{},
		WithDispatcher(d),
		WithClock(func() time.Time { return fixedNow }),
	)
	return h
}

// Tests

func TestEngine_SingleStepApproval(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))

	tr, err := h.engine.ApproveStep(context.Background(), "req-1", "M1", "looks fine")

	require.NoError(t, err)
	assert.Equal(t, event.TypeRequestApproved, tr.EventType)

	stored := h.requests.stored("req-1")
	assert.Equal(t, entity.RequestStatusApproved, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, fixedNow, *stored.CompletedAt)
	assert.Equal(t, entity.StepStatusApproved, stored.Steps[0].Status)
	assert.Equal(t, "M1", stored.Steps[0].ApproverID)
	assert.Equal(t, "looks fine", stored.Steps[0].Comments)
	assert.Equal(t, int64(1), stored.Version)

	assert.Equal(t, []event.Type{event.TypeRequestApproved}, h.events.types())
	assert.Equal(t, "M1", h.events.events[0].ActorID)
	assert.Equal(t, entity.RequestStatusApproved, h.events.events[0].NewStatus)

	require.Len(t, h.actions.actions, 1)
	assert.Equal(t, entity.ActionApproved, h.actions.actions[0].Action)
	assert.Equal(t, "step-1", h.actions.actions[0].StepID)
}

func TestEngine_TwoStepOwnerRejects(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager, entity.RoleOwner))
	ctx := context.Background()

	tr, err := h.engine.ApproveStep(ctx, "req-1", "M1", "")
	require.NoError(t, err)
	assert.Equal(t, event.TypeStepApproved, tr.EventType)
	assert.Equal(t, entity.RequestStatusPending, h.requests.stored("req-1").Status)

	_, err = h.engine.RejectStep(ctx, "req-1", "O1", "insufficient documentation")
	require.NoError(t, err)

	stored := h.requests.stored("req-1")
	assert.Equal(t, entity.RequestStatusRejected, stored.Status)
	assert.Equal(t, "insufficient documentation", stored.RejectReason)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, entity.StepStatusApproved, stored.Steps[0].Status)
	assert.Equal(t, entity.StepStatusRejected, stored.Steps[1].Status)
	assert.Equal(t, "O1", stored.Steps[1].ApproverID)

	assert.Equal(t, []event.Type{event.TypeStepApproved, event.TypeRequestRejected}, h.events.types())
}

func TestEngine_RejectSkipsHigherLevels(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager, entity.RoleOwner, entity.RoleOwner))

	_, err := h.engine.RejectStep(context.Background(), "req-1", "M1", "over budget")
	require.NoError(t, err)

	stored := h.requests.stored("req-1")
	assert.Equal(t, entity.StepStatusRejected, stored.Steps[0].Status)
	assert.Equal(t, entity.StepStatusSkipped, stored.Steps[1].Status)
	assert.Equal(t, entity.StepStatusSkipped, stored.Steps[2].Status)
}

func TestEngine_ApprovalsAreContiguous(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager, entity.RoleOwner))
	ctx := context.Background()

	// the owner cannot jump ahead of the manager level
	_, err := h.engine.ApproveStep(ctx, "req-1", "O1", "")
	assert.True(t, errors.Is(err, entity.ErrUnauthorized))

	_, err = h.engine.ApproveStep(ctx, "req-1", "M1", "")
	require.NoError(t, err)
	_, err = h.engine.ApproveStep(ctx, "req-1", "O1", "")
	require.NoError(t, err)

	stored := h.requests.stored("req-1")
	assert.Equal(t, entity.RequestStatusApproved, stored.Status)
	for _, s := range stored.Steps {
		assert.Equal(t, entity.StepStatusApproved, s.Status)
	}
}

func TestEngine_AuthorizationGateLeavesStateUnchanged(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))

	_, err := h.engine.ApproveStep(context.Background(), "req-1", "intruder", "")

	assert.True(t, errors.Is(err, entity.ErrUnauthorized))
	stored := h.requests.stored("req-1")
	assert.Equal(t, entity.RequestStatusPending, stored.Status)
	assert.Equal(t, entity.StepStatusPending, stored.Steps[0].Status)
	assert.Equal(t, int64(0), stored.Version)
	assert.Empty(t, h.actions.actions)
	assert.Empty(t, h.events.types())
}

func TestEngine_TerminalRequestRefusesEverything(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))
	ctx := context.Background()

	_, err := h.engine.ApproveStep(ctx, "req-1", "M1", "")
	require.NoError(t, err)

	_, err = h.engine.ApproveStep(ctx, "req-1", "M1", "")
	assert.True(t, errors.Is(err, entity.ErrInvalidState))
	_, err = h.engine.RejectStep(ctx, "req-1", "M1", "late")
	assert.True(t, errors.Is(err, entity.ErrInvalidState))
	_, err = h.engine.CancelRequest(ctx, "req-1", "U1", "never mind")
	assert.True(t, errors.Is(err, entity.ErrInvalidState))

	assert.Equal(t, entity.RequestStatusApproved, h.requests.stored("req-1").Status)
	assert.Len(t, h.events.types(), 1)
}

func TestEngine_CancelByRequester(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager, entity.RoleOwner))

	_, err := h.engine.CancelRequest(context.Background(), "req-1", "U1", "duplicate submission")
	require.NoError(t, err)

	stored := h.requests.stored("req-1")
	assert.Equal(t, entity.RequestStatusCancelled, stored.Status)
	assert.Equal(t, "duplicate submission", stored.CancelReason)
	require.NotNil(t, stored.CompletedAt)
	for _, s := range stored.Steps {
		assert.Equal(t, entity.StepStatusPending, s.Status, "cancellation leaves steps untouched")
	}
	assert.Equal(t, []event.Type{event.TypeRequestCancelled}, h.events.types())
	assert.Equal(t, "U1", h.events.events[0].ActorID)
}

func TestEngine_CancelByOtherUser(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))

	_, err := h.engine.CancelRequest(context.Background(), "req-1", "U2", "")

	assert.True(t, errors.Is(err, entity.ErrUnauthorized))
	assert.Equal(t, entity.RequestStatusPending, h.requests.stored("req-1").Status)
}

func TestEngine_RejectRequiresReason(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))

	_, err := h.engine.RejectStep(context.Background(), "req-1", "M1", "   ")

	assert.True(t, errors.Is(err, entity.ErrInvalidArgument))
	assert.Equal(t, entity.RequestStatusPending, h.requests.stored("req-1").Status)
}

func TestEngine_UnknownRequest(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))

	_, err := h.engine.ApproveStep(context.Background(), "missing", "M1", "")

	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestEngine_DirectoryOutageFailsClosed(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))
	h.pools.err = fmt.Errorf("lookup: %w", entity.ErrUnavailable)

	_, err := h.engine.ApproveStep(context.Background(), "req-1", "M1", "")

	assert.True(t, errors.Is(err, entity.ErrUnavailable))
	assert.Equal(t, entity.RequestStatusPending, h.requests.stored("req-1").Status)
}

func TestEngine_EmptyPoolIsNotUnrestricted(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleAccountant))

	_, err := h.engine.ApproveStep(context.Background(), "req-1", "M1", "")

	assert.True(t, errors.Is(err, entity.ErrUnauthorized))
}

func TestEngine_ConcurrentWriterLoses(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))
	h.requests.updateErr = fmt.Errorf("request req-1 changed concurrently: %w", entity.ErrInvalidState)

	_, err := h.engine.ApproveStep(context.Background(), "req-1", "M1", "")

	assert.True(t, errors.Is(err, entity.ErrInvalidState))
	assert.Empty(t, h.events.types())
}

func TestEngine_DispatchFailureDoesNotUndoTransition(t *testing.T) {
	req := pendingRequest(entity.RoleManager)
	requests := newMockRequestRepo(req)
	d := dispatcher.NewDispatcher()
	d.SubscribeNamed(event.TypeRequestApproved, "publisher", func(ctx context.Context, evt *event.Event) error {
		return errors.New("broker down")
	})
	engine := NewEngine(requests, &mockActionRepo{}, &mockTxManager{},
		&staticPools{holders: map[entity.Role][]string{entity.RoleManager: {"M1"}}},
		&mockLogger{}, WithDispatcher(d))

	_, err := engine.ApproveStep(context.Background(), "req-1", "M1", "")

	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusApproved, requests.stored("req-1").Status)
}

func TestEngine_ExpectedLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   int
		wantErr error
	}{
		{"matching level", 1, nil},
		{"any level", 0, nil},
		{"level already passed", 2, entity.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(pendingRequest(entity.RoleManager, entity.RoleManager))

			_, err := h.engine.ApproveStep(context.Background(), "req-1", "M1", "", AtLevel(tt.level))

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, int64(0), h.requests.stored("req-1").Version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, entity.StepStatusApproved, h.requests.stored("req-1").Steps[0].Status)
		})
	}
}

func TestEngine_RejectAtStaleLevel(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager, entity.RoleOwner))
	ctx := context.Background()

	_, err := h.engine.ApproveStep(ctx, "req-1", "M1", "", AtLevel(1))
	require.NoError(t, err)

	_, err = h.engine.RejectStep(ctx, "req-1", "O1", "missing receipt", AtLevel(1))

	assert.True(t, errors.Is(err, entity.ErrInvalidState))
	assert.Equal(t, entity.RequestStatusPending, h.requests.stored("req-1").Status)
}

func TestEngine_StepMovedBeforeLock(t *testing.T) {
	// another approver decides level 1 after this call was authorized for it
	h := newHarness(pendingRequest(entity.RoleManager, entity.RoleManager))
	h.pools.holders[entity.RoleManager] = []string{"M1", "M2"}
	h.requests.beforeLockFunc = func() {
		h.requests.beforeLockFunc = nil
		_, err := h.engine.ApproveStep(context.Background(), "req-1", "M2", "")
		require.NoError(t, err)
	}

	_, err := h.engine.ApproveStep(context.Background(), "req-1", "M1", "")

	assert.True(t, errors.Is(err, entity.ErrInvalidState), "got %v", err)
	stored := h.requests.stored("req-1")
	assert.Equal(t, entity.RequestStatusPending, stored.Status)
	assert.Equal(t, "M2", stored.Steps[0].ApproverID)
	assert.Equal(t, entity.StepStatusPending, stored.Steps[1].Status)
}

func TestEngine_DirectoryNotCalledInsideTransaction(t *testing.T) {
	h := newHarness(pendingRequest(entity.RoleManager))
	resolved := false
	h.requests.beforeLockFunc = func() {
		assert.True(t, resolved, "pool must be resolved before the request is locked")
	}
	pools := &trackingPools{next: h.pools, resolved: &resolved}
	engine := NewEngine(h.requests, h.actions, &mockTxManager{}, pools, &mockLogger{})

	_, err := engine.ApproveStep(context.Background(), "req-1", "M1", "")

	require.NoError(t, err)
}

type trackingPools struct {
	next     PoolResolver
	resolved *bool
}

func (p *trackingPools) ResolvePool(ctx context.Context, companyID string, step *entity.ApprovalStep) (*routing.ApproverPool, error) {
	*p.resolved = true
	return p.next.ResolvePool(ctx, companyID, step)
}

func TestExpectedLevel(t *testing.T) {
	assert.Equal(t, 0, ExpectedLevel())
	assert.Equal(t, 3, ExpectedLevel(AtLevel(3)))
	assert.Equal(t, 2, ExpectedLevel(AtLevel(3), AtLevel(2)))
}
