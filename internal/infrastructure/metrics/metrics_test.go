package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

func newEvent(t event.Type, status entity.RequestStatus, payload map[string]interface{}) *event.Event {
	req := &entity.ApprovalRequest{ID: "req-1", CompanyID: "company-1", Status: status}
	return event.NewEvent(t, req, "U1", payload)
}

func TestRecorder_Handle(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, newEvent(event.TypeRequestSubmitted, entity.RequestStatusPending, nil)))
	require.NoError(t, r.Handle(ctx, newEvent(event.TypeRequestSubmitted, entity.RequestStatusPending, nil)))
	require.NoError(t, r.Handle(ctx, newEvent(event.TypeStepApproved, entity.RequestStatusPending, nil)))
	require.NoError(t, r.Handle(ctx, newEvent(event.TypeRequestApproved, entity.RequestStatusApproved, map[string]interface{}{
		"submitted_at": time.Now().UTC().Add(-time.Hour),
	})))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transitionsTotal.WithLabelValues("request.submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitionsTotal.WithLabelValues("request.step_approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitionsTotal.WithLabelValues("request.approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.pendingRequests.WithLabelValues("company-1")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.completionSeconds))
}

func TestRecorder_SeedPending(t *testing.T) {
	tests := []struct {
		name   string
		seed   map[string]int
		events []event.Type
		want   float64
	}{
		{
			name:   "terminal event after restart",
			seed:   map[string]int{"company-1": 2},
			events: []event.Type{event.TypeRequestRejected},
			want:   1,
		},
		{
			name:   "submission adds to seed",
			seed:   map[string]int{"company-1": 3},
			events: []event.Type{event.TypeRequestSubmitted, event.TypeRequestApproved},
			want:   3,
		},
		{
			name:   "no stored requests",
			seed:   map[string]int{},
			events: []event.Type{event.TypeRequestSubmitted},
			want:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder()
			r.SeedPending(tt.seed)

			for _, typ := range tt.events {
				status := entity.RequestStatusPending
				switch typ {
				case event.TypeRequestApproved:
					status = entity.RequestStatusApproved
				case event.TypeRequestRejected:
					status = entity.RequestStatusRejected
				}
				require.NoError(t, r.Handle(context.Background(), newEvent(typ, status, nil)))
			}

			assert.Equal(t, tt.want, testutil.ToFloat64(r.pendingRequests.WithLabelValues("company-1")))
		})
	}
}

func TestRecorder_TerminalWithoutSubmittedAt(t *testing.T) {
	r := NewRecorder()

	require.NoError(t, r.Handle(context.Background(), newEvent(event.TypeRequestCancelled, entity.RequestStatusCancelled, nil)))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitionsTotal.WithLabelValues("request.cancelled")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.completionSeconds))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Handle(context.Background(), newEvent(event.TypeRequestSubmitted, entity.RequestStatusPending, nil)))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `approvals_transitions_total{event_type="request.submitted"} 1`), body)
}
