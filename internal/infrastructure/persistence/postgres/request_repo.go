package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
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
	return &RequestRepository{db: db, logger: logger}
}

const requestColumns = `
	r.id, r.company_id, r.approvable_type, r.approvable_id, r.amount::text, r.chain_id,
	r.status, r.requested_by, r.submitted_at, r.completed_at,
	r.cancel_reason, r.reject_reason, r.version
`

// Create inserts the request and its steps in one transaction
func (r *RequestRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO approval_requests (
			    id, company_id, approvable_type, approvable_id, amount, chain_id,
			    status, requested_by, submitted_at, completed_at,
			    cancel_reason, reject_reason, version
			) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		tx := extractTx(txCtx)
		_, err := tx.Exec(txCtx, query,
			req.ID,
			req.CompanyID,
			req.ApprovableType,
			req.ApprovableID,
			req.Amount.String(),
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
			if hasCode(err, codeUniqueViolation) {
				return fmt.Errorf("%w: %s %s already has a pending request",
					entity.ErrInvalidState, req.ApprovableType, req.ApprovableID)
			}
			r.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
			return fmt.Errorf("failed to create request: %w", err)
		}

		batch := &pgx.Batch{}
		for _, step := range req.Steps {
			step.RequestID = req.ID
			batch.Queue(`
				INSERT INTO approval_steps (
				    id, request_id, level, required_role, status,
				    approver_id, comments, acted_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, step.ID, step.RequestID, step.Level, step.RequiredRole, step.Status,
				step.ApproverID, step.Comments, step.ActedAt)
		}
		if err := tx.SendBatch(txCtx, batch).Close(); err != nil {
			r.logger.Error("Failed to create steps", zap.String("request_id", req.ID), zap.Error(err))
			return fmt.Errorf("failed to create steps: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a request with its steps
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM approval_requests r WHERE r.id = $1`, id)
}

// GetForUpdate row-locks the request for the surrounding transaction
func (r *RequestRepository) GetForUpdate(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	if extractTx(ctx) == nil {
		return nil, fmt.Errorf("lock request %s: no transaction in context", id)
	}
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM approval_requests r WHERE r.id = $1 FOR UPDATE`, id)
}

func (r *RequestRepository) getOne(ctx context.Context, query, id string) (*entity.ApprovalRequest, error) {
	reqs, err := r.query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("request %s: %w", id, entity.ErrNotFound)
	}
	return reqs[0], nil
}

// Update writes status fields and the given steps if the stored version matches
func (r *RequestRepository) Update(ctx context.Context, req *entity.ApprovalRequest, steps []*entity.ApprovalStep) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			UPDATE approval_requests
			SET status = $3, completed_at = $4, cancel_reason = $5, reject_reason = $6,
			    version = version + 1
			WHERE id = $1 AND version = $2
		`
		tx := extractTx(txCtx)
		tag, err := tx.Exec(txCtx, query,
			req.ID,
			req.Version,
			req.Status,
			req.CompletedAt,
			req.CancelReason,
			req.RejectReason,
		)
		if err != nil {
			r.logger.Error("Failed to update request", zap.String("request_id", req.ID), zap.Error(err))
			return fmt.Errorf("failed to update request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: request %s changed since version %d", entity.ErrInvalidState, req.ID, req.Version)
		}

		if len(steps) > 0 {
			batch := &pgx.Batch{}
			for _, step := range steps {
				batch.Queue(`
					UPDATE approval_steps
					SET status = $3, approver_id = $4, comments = $5, acted_at = $6
					WHERE id = $1 AND request_id = $2
				`, step.ID, req.ID, step.Status, step.ApproverID, step.Comments, step.ActedAt)
			}
			if err := tx.SendBatch(txCtx, batch).Close(); err != nil {
				return fmt.Errorf("failed to update steps: %w", err)
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
		WHERE r.company_id = $1 AND r.approvable_type = $2 AND r.approvable_id = $3
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
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		WHERE r.company_id = $1 AND ($2::text = '' OR r.status = $2::text)
		ORDER BY r.submitted_at DESC, r.id
		LIMIT $3 OFFSET $4
	`
	return r.query(ctx, query, filter.CompanyID, string(filter.Status), filter.Limit, filter.Offset)
}

// ListPendingByCurrentRole returns pending requests whose lowest pending step
// requires one of roles
func (r *RequestRepository) ListPendingByCurrentRole(ctx context.Context, companyID string, roles []entity.Role) ([]*entity.ApprovalRequest, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.String())
	}

	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests r
		JOIN LATERAL (
		    SELECT required_role
		    FROM approval_steps
		    WHERE request_id = r.id AND status = 'pending'
		    ORDER BY level
		    LIMIT 1
		) cur ON TRUE
		WHERE r.company_id = $1
		  AND r.status = 'pending'
		  AND cur.required_role = ANY($2)
		ORDER BY r.submitted_at, r.id
	`
	return r.query(ctx, query, companyID, names)
}

// CountPending returns the number of pending requests per company
func (r *RequestRepository) CountPending(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.getExecutor(ctx).Query(ctx, `
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

func (r *RequestRepository) query(ctx context.Context, query string, args ...any) ([]*entity.ApprovalRequest, error) {
	rows, err := r.db.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query requests", zap.Error(err))
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var reqs []*entity.ApprovalRequest
	byID := make(map[string]*entity.ApprovalRequest)
	ids := []string{}
	for rows.Next() {
		var req entity.ApprovalRequest
		var amount string
		if err := rows.Scan(
			&req.ID,
			&req.CompanyID,
			&req.ApprovableType,
			&req.ApprovableID,
			&amount,
			&req.ChainID,
			&req.Status,
			&req.RequestedBy,
			&req.SubmittedAt,
			&req.CompletedAt,
			&req.CancelReason,
			&req.RejectReason,
			&req.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		if req.Amount, err = decimal.NewFromString(strings.TrimSpace(amount)); err != nil {
			return nil, fmt.Errorf("request %s amount: %w", req.ID, err)
		}
		reqs = append(reqs, &req)
		byID[req.ID] = &req
		ids = append(ids, req.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	if len(reqs) == 0 {
		return reqs, nil
	}

	stepRows, err := r.db.getExecutor(ctx).Query(ctx, `
		SELECT id, request_id, level, required_role, status, approver_id, comments, acted_at
		FROM approval_steps
		WHERE request_id = ANY($1)
		ORDER BY request_id, level
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer stepRows.Close()

	for stepRows.Next() {
		var step entity.ApprovalStep
		if err := stepRows.Scan(
			&step.ID,
			&step.RequestID,
			&step.Level,
			&step.RequiredRole,
			&step.Status,
			&step.ApproverID,
			&step.Comments,
			&step.ActedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if req, ok := byID[step.RequestID]; ok {
			req.Steps = append(req.Steps, &step)
		}
	}
	if err := stepRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return reqs, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
