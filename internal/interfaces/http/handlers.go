package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/routing"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ActorHeader carries the authenticated user id set by the upstream auth layer
const ActorHeader = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflow service.WorkflowService
	chains   service.ChainService
	health   HealthFunc
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(wf service.WorkflowService, chains service.ChainService, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		workflow: wf,
		chains:   chains,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// SubmitRequest is the body of POST /requests
type SubmitRequest struct {
	EntityType entity.EntityType `json:"entity_type" binding:"required"`
	EntityID   string            `json:"entity_id" binding:"required"`
	Amount     *decimal.Decimal  `json:"amount" binding:"required"`
}

// ActionRequest is the body of approve, reject and cancel.
// Level pins an approve or reject to the step the approver looked at; when
// that step is no longer current the call fails with 409.
type ActionRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
	Level   int    `json:"level" binding:"omitempty,min=1"`
}

// ListRequestsQuery holds the query parameters of GET /requests
type ListRequestsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.health != nil {
		ok, details := h.health(c.Request.Context())
		resp.Components = details
		if !ok {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// SubmitRequest handles POST /companies/:companyID/requests
func (h *Handlers) SubmitRequest(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var body SubmitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.workflow.SubmitForApproval(c.Request.Context(), service.SubmitInput{
		CompanyID:   c.Param("companyID"),
		EntityType:  body.EntityType,
		EntityID:    body.EntityID,
		Amount:      *body.Amount,
		RequestedBy: actor,
	})
	if err != nil {
		h.fail(c, "submit", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// ListRequests handles GET /companies/:companyID/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}

	reqs, err := h.workflow.ListRequests(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "list_requests", err)
		return
	}
	if reqs == nil {
		reqs = []*entity.ApprovalRequest{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: reqs})
}

// ExportRequests handles GET /companies/:companyID/requests/export
func (h *Handlers) ExportRequests(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}

	report, err := h.workflow.ExportRequests(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "export_requests", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	c.Data(http.StatusOK, report.ContentType, report.Data)
}

// GetRequest handles GET /companies/:companyID/requests/:requestID
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.workflow.GetRequest(c.Request.Context(), c.Param("companyID"), c.Param("requestID"))
	if err != nil {
		h.fail(c, "get_request", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// GetHistory handles GET /companies/:companyID/requests/:requestID/history
func (h *Handlers) GetHistory(c *gin.Context) {
	actions, err := h.workflow.History(c.Request.Context(), c.Param("companyID"), c.Param("requestID"))
	if err != nil {
		h.fail(c, "history", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: actions})
}

// ApproversResponse is the eligible pool of the current step
type ApproversResponse struct {
	*routing.ApproverPool
	NoEligibleApprover bool `json:"no_eligible_approver"`
}

// GetApprovers handles GET /companies/:companyID/requests/:requestID/approvers
func (h *Handlers) GetApprovers(c *gin.Context) {
	pool, err := h.workflow.CurrentApprovers(c.Request.Context(), c.Param("companyID"), c.Param("requestID"))
	if err != nil {
		h.fail(c, "approvers", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ApproversResponse{
		ApproverPool:       pool,
		NoEligibleApprover: pool.Empty(),
	}})
}

// ApproveRequest handles POST /companies/:companyID/requests/:requestID/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	h.act(c, "approve", func(ctx context.Context, requestID, actor string, body ActionRequest) (*entity.ApprovalRequest, error) {
		return h.workflow.ApproveStep(ctx, requestID, actor, body.Comment, workflow.AtLevel(body.Level))
	})
}

// RejectRequest handles POST /companies/:companyID/requests/:requestID/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	h.act(c, "reject", func(ctx context.Context, requestID, actor string, body ActionRequest) (*entity.ApprovalRequest, error) {
		return h.workflow.RejectStep(ctx, requestID, actor, body.Reason, workflow.AtLevel(body.Level))
	})
}

// CancelRequest handles POST /companies/:companyID/requests/:requestID/cancel
func (h *Handlers) CancelRequest(c *gin.Context) {
	h.act(c, "cancel", func(ctx context.Context, requestID, actor string, body ActionRequest) (*entity.ApprovalRequest, error) {
		return h.workflow.CancelRequest(ctx, requestID, actor, body.Reason)
	})
}

type actionFunc func(ctx context.Context, requestID, actor string, body ActionRequest) (*entity.ApprovalRequest, error)

// act scopes the request to the company in the path before transitioning it
func (h *Handlers) act(c *gin.Context, op string, fn actionFunc) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var body ActionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	requestID := c.Param("requestID")
	if _, err := h.workflow.GetRequest(ctx, c.Param("companyID"), requestID); err != nil {
		h.fail(c, op, err)
		return
	}

	req, err := fn(ctx, requestID, actor, body)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// PendingApprovals handles GET /users/:userID/pending-approvals
func (h *Handlers) PendingApprovals(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	userID := c.Param("userID")
	if actor != userID {
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "pending approvals are only visible to their owner"})
		return
	}

	reqs, err := h.workflow.GetPendingApprovalsForUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "pending_approvals", err)
		return
	}
	if reqs == nil {
		reqs = []*entity.ApprovalRequest{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: reqs})
}

func requireActor(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetHeader(ActorHeader))
	if actor == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: ActorHeader + " header is required"})
		return "", false
	}
	return actor, true
}

func bindFilter(c *gin.Context) (port.RequestFilter, bool) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return port.RequestFilter{}, false
	}
	return port.RequestFilter{
		CompanyID: c.Param("companyID"),
		Status:    entity.RequestStatus(q.Status),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}, true
}
