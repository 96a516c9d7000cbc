package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `
	r.id, r.company_id, r.approvable_type, r.approvable_id, r.amount, r.chain_id,
	r.status, r.requested_by, r.submitted_at, r.completed_at,
	r.cancel_reason, r.reject_reason, r.version
`

// Create inserts the request and its steps
func (r *RequestRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO approval_requests (
				id, company_id, approvable_type, approvable_id, amount, chain_id,
				status, requested_by, submitted_at, completed_at,
				cancel_reason, reject_reason, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		exec := r.db.getExecutor(txCtx)
		_, err := exec.ExecContext(txCtx, query,
			req.ID,
			req.CompanyID,
			req.ApprovableType,
			req.ApprovableID,
			req.Amount,
			req.ChainID,
			req.Status,
			req.RequestedBy,
			req.SubmittedAt,
			req.CompletedAt,
			req.CancelReason,
			req.RejectReason,
			req.Version,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s %s already has a pending request",
					entity.ErrInvalidState, req.ApprovableType, req.ApprovableID)
			}
			r.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
			return fmt.Errorf("failed to create request: %w", err)
		}

		stepQuery := `
			INSERT INTO approval_steps (
				id, request_id, level, required_role, status,
				approver_id, comments, acted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, step := range req.Steps {
			step.RequestID = req.ID
			if _, err := exec.ExecContext(txCtx, stepQuery,
				step.ID,
				step.RequestID,
				step.Level,
				step.RequiredRole,
				step.Status,
				step.ApproverID,
				step.Comments,
				step.ActedAt,
			); err != nil {
				r.logger.Error("Failed to create step", zap.String("request_id", req.ID), zap.Int("level", step.Level), zap.Error(err))
				return fmt.Errorf("failed to create step level %d: %w", step.Level, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a request with its steps
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	reqs, err := r.query(ctx, `SELECT `+requestColumns+` FROM approval_requests r WHERE r.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("request %s: %w", id, entity.ErrNotFound)
	}
	return reqs[0], nil
}

// GetForUpdate loads the request inside the caller's transaction.
// SQLite transactions are opened with BEGIN IMMEDIATE, which already holds
// the database write lock.
func (r *RequestRepository) GetForUpdate(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	if txFrom(ctx) == nil {
		r.logger.Warn("GetForUpdate called outside a transaction", zap.String("request_id", id))
	}
	return r.GetByID(ctx, id)
}

// Update writes status fields and the given steps if the stored version matches
func (r *RequestRepository) Update(ctx context.Context, req *entity.ApprovalRequest, steps []*entity.ApprovalStep) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			UPDATE approval_requests
			SET status = ?, completed_at = ?, cancel_reason = ?, reject_reason = ?,
				version = version + 1
			WHERE id = ? AND version = ?
		`
		exec := r.db.getExecutor(txCtx)
		result, err := exec.ExecContext(txCtx, query,
			req.Status,
			req.CompletedAt,
			req.CancelReason,
			req.RejectReason,
			req.ID,
			req.Version,
		)
		if err != nil {
			r.logger.Error("Failed to update request", zap.String("request_id", req.ID), zap.Error(err))
			return fmt.Errorf("failed to update request: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: request %s changed since version %d", entity.ErrInvalidState, req.ID, req.Version)
		}

		stepQuery := `
			UPDATE approval_steps
			SET status = ?, approver_id = ?, comments = ?, acted_at = ?
			WHERE id = ? AND request_id = ?
		`
		for _, step := range steps {
			if _, err := exec.ExecContext(txCtx, stepQuery,
				step.Status,
				step.ApproverID,
				step.Comments,
				step.ActedAt,
				step.ID,
				req.ID,
			); err != nil {
				return fmt.Errorf("failed to update step level %d: %w", step.Level, err)
			}
		}

		req.Version++
		return nil
	})
}

// FindPendingByEntity returns the pending request for an entity, or nil
func (r *RequestRepository) FindPendingByEntity(ctx context.Context, companyID string, entityType entity.EntityType, entityID string) (*entity.ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		WHERE r.company_id = ? AND r.approvable_type = ? AND r.approvable_id = ?
			AND r.status = 'pending'
	`
	reqs, err := r.query(ctx, query, companyID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs[0], nil
}

// List returns requests of a company, newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests r WHERE r.company_id = ?`
	args := []interface{}{filter.CompanyID}
	if filter.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY r.submitted_at DESC, r.id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	return r.query(ctx, query, args...)
}

// ListPendingByCurrentRole returns pending requests whose lowest pending step
// requires one of roles
func (r *RequestRepository) ListPendingByCurrentRole(ctx context.Context, companyID string, roles []entity.Role) ([]*entity.ApprovalRequest, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	args := []interface{}{companyID}
	for _, role := range roles {
		args = append(args, role)
	}

	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN approval_steps s ON s.request_id = r.id
		WHERE r.company_id = ?
			AND r.status = 'pending'
			AND s.status = 'pending'
			AND s.level = (
				SELECT MIN(level) FROM approval_steps
				WHERE request_id = r.id AND status = 'pending'
			)
			AND s.required_role IN (` + placeholders(len(roles)) + `)
		ORDER BY r.submitted_at, r.id
	`
	return r.query(ctx, query, args...)
}

// CountPending returns the number of pending requests per company
func (r *RequestRepository) CountPending(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, `
		SELECT company_id, COUNT(*)
		FROM approval_requests
		WHERE status = 'pending'
		GROUP BY company_id
	`)
	if err != nil {
		r.logger.Error("Failed to count pending requests", zap.Error(err))
		return nil, fmt.Errorf("failed to count pending requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var companyID string
		var n int
		if err := rows.Scan(&companyID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan pending count: %w", err)
		}
		counts[companyID] = n
	}
	return counts, rows.Err()
}

func (r *RequestRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRequest, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query requests", zap.Error(err))
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var reqs []*entity.ApprovalRequest
	byID := make(map[string]*entity.ApprovalRequest)
	for rows.Next() {
		var req entity.ApprovalRequest
		var completedAt sql.NullTime
		if err := rows.Scan(
			&req.ID,
			&req.CompanyID,
			&req.ApprovableType,
			&req.ApprovableID,
			&req.Amount,
			&req.ChainID,
			&req.Status,
			&req.RequestedBy,
			&req.SubmittedAt,
			&completedAt,
			&req.CancelReason,
			&req.RejectReason,
			&req.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		if completedAt.Valid {
			req.CompletedAt = &completedAt.Time
		}
		reqs = append(reqs, &req)
		byID[req.ID] = &req
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	if len(reqs) == 0 {
		return reqs, nil
	}

	if err := r.loadSteps(ctx, byID); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *RequestRepository) loadSteps(ctx context.Context, byID map[string]*entity.ApprovalRequest) error {
	ids := make([]interface{}, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	query := `
		SELECT id, request_id, level, required_role, status, approver_id, comments, acted_at
		FROM approval_steps
		WHERE request_id IN (` + placeholders(len(ids)) + `)
		ORDER BY request_id, level
	`
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step entity.ApprovalStep
		var actedAt sql.NullTime
		if err := rows.Scan(
			&step.ID,
			&step.RequestID,
			&step.Level,
			&step.RequiredRole,
			&step.Status,
			&step.ApproverID,
			&step.Comments,
			&actedAt,
		); err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}
		if actedAt.Valid {
			step.ActedAt = &actedAt.Time
		}
		if req, ok := byID[step.RequestID]; ok {
			req.Steps = append(req.Steps, &step)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate steps: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
