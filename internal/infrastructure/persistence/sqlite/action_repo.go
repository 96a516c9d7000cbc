package sqlite

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ActionRepository implements port.ActionRepository
type ActionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewActionRepository creates a new audit trail repository
func NewActionRepository(db *DB, logger *zap.Logger) *ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit entry
func (r *ActionRepository) Create(ctx context.Context, action *entity.ApprovalAction) error {
	query := `
		INSERT INTO approval_actions (
			id, request_id, step_id, action, actor_id,
			from_status, to_status, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.getExecutor(ctx).ExecContext(ctx, query,
		action.ID,
		action.RequestID,
		action.StepID,
		action.Action,
		action.ActorID,
		action.FromStatus,
		action.ToStatus,
		action.Comment,
		action.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create action", zap.String("request_id", action.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

// ListByRequest returns the audit trail of a request in chronological order
func (r *ActionRepository) ListByRequest(ctx context.Context, requestID string) ([]*entity.ApprovalAction, error) {
	query := `
		SELECT id, request_id, step_id, action, actor_id,
			from_status, to_status, comment, created_at
		FROM approval_actions
		WHERE request_id = ?
		ORDER BY created_at, rowid
	`

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list actions", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*entity.ApprovalAction
	for rows.Next() {
		var a entity.ApprovalAction
		if err := rows.Scan(
			&a.ID,
			&a.RequestID,
			&a.StepID,
			&a.Action,
			&a.ActorID,
			&a.FromStatus,
			&a.ToStatus,
			&a.Comment,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

// Verify interface compliance
var _ port.ActionRepository = (*ActionRepository)(nil)
