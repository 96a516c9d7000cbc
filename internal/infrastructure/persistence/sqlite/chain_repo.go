package sqlite

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ChainRepository implements port.ChainRepository
type ChainRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChainRepository creates a new chain repository
func NewChainRepository(db *DB, logger *zap.Logger) *ChainRepository {
	return &ChainRepository{
		db:     db,
		logger: logger,
	}
}

const chainColumns = `
	id, company_id, name, entity_type, min_amount, max_amount,
	priority, is_active, created_at, updated_at
`

// Create inserts a chain with its step templates
func (r *ChainRepository) Create(ctx context.Context, chain *entity.ApprovalChain) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO approval_chains (` + chainColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.db.getExecutor(txCtx).ExecContext(txCtx, query,
			chain.ID,
			chain.CompanyID,
			chain.Name,
			chain.EntityType,
			chain.MinAmount,
			chain.MaxAmount,
			chain.Priority,
			chain.IsActive,
			chain.CreatedAt,
			chain.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create chain", zap.String("chain_id", chain.ID), zap.Error(err))
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: chain %s already exists", entity.ErrInvalidState, chain.ID)
			}
			return fmt.Errorf("failed to create chain: %w", err)
		}

		return r.insertSteps(txCtx, chain)
	})
}

// Update replaces the chain's fields and step templates
func (r *ChainRepository) Update(ctx context.Context, chain *entity.ApprovalChain) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			UPDATE approval_chains
			SET name = ?, entity_type = ?, min_amount = ?, max_amount = ?,
				priority = ?, is_active = ?, updated_at = ?
			WHERE id = ? AND company_id = ?
		`
		exec := r.db.getExecutor(txCtx)
		result, err := exec.ExecContext(txCtx, query,
			chain.Name,
			chain.EntityType,
			chain.MinAmount,
			chain.MaxAmount,
			chain.Priority,
			chain.IsActive,
			chain.UpdatedAt,
			chain.ID,
			chain.CompanyID,
		)
		if err != nil {
			r.logger.Error("Failed to update chain", zap.String("chain_id", chain.ID), zap.Error(err))
			return fmt.Errorf("failed to update chain: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("chain %s: %w", chain.ID, entity.ErrNotFound)
		}

		if _, err := exec.ExecContext(txCtx, `DELETE FROM approval_chain_steps WHERE chain_id = ?`, chain.ID); err != nil {
			return fmt.Errorf("failed to clear chain steps: %w", err)
		}
		return r.insertSteps(txCtx, chain)
	})
}

func (r *ChainRepository) insertSteps(ctx context.Context, chain *entity.ApprovalChain) error {
	query := `INSERT INTO approval_chain_steps (chain_id, level, role) VALUES (?, ?, ?)`
	for _, step := range chain.Steps {
		if _, err := r.db.getExecutor(ctx).ExecContext(ctx, query, chain.ID, step.Level, step.Role); err != nil {
			return fmt.Errorf("failed to insert step level %d: %w", step.Level, err)
		}
	}
	return nil
}

// GetByID retrieves a chain of the company
func (r *ChainRepository) GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalChain, error) {
	query := `SELECT ` + chainColumns + ` FROM approval_chains WHERE id = ? AND company_id = ?`

	chains, err := r.query(ctx, query, id, companyID)
	if err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("chain %s: %w", id, entity.ErrNotFound)
	}
	return chains[0], nil
}

// ListByCompany lists the chains of a company, most preferred first
func (r *ChainRepository) ListByCompany(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error) {
	query := `SELECT ` + chainColumns + ` FROM approval_chains WHERE company_id = ?`
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY entity_type, priority DESC, created_at DESC, id DESC`

	return r.query(ctx, query, companyID)
}

// FindActive returns active chains of the company for one entity type
func (r *ChainRepository) FindActive(ctx context.Context, companyID string, entityType entity.EntityType) ([]*entity.ApprovalChain, error) {
	query := `
		SELECT ` + chainColumns + `
		FROM approval_chains
		WHERE company_id = ? AND entity_type = ? AND is_active = 1
		ORDER BY priority DESC, created_at DESC, id DESC
	`
	return r.query(ctx, query, companyID, entityType)
}

// Delete hard-deletes a chain of the company
func (r *ChainRepository) Delete(ctx context.Context, companyID, id string) error {
	result, err := r.db.getExecutor(ctx).ExecContext(ctx,
		`DELETE FROM approval_chains WHERE id = ? AND company_id = ?`, id, companyID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: chain %s is referenced by requests", entity.ErrInvalidState, id)
		}
		r.logger.Error("Failed to delete chain", zap.String("chain_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete chain: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("chain %s: %w", id, entity.ErrNotFound)
	}
	return nil
}

// IsReferenced reports whether any request points at the chain
func (r *ChainRepository) IsReferenced(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM approval_requests WHERE chain_id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check chain references: %w", err)
	}
	return exists, nil
}

func (r *ChainRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalChain, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query chains", zap.Error(err))
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	var chains []*entity.ApprovalChain
	byID := make(map[string]*entity.ApprovalChain)
	for rows.Next() {
		var chain entity.ApprovalChain
		if err := rows.Scan(
			&chain.ID,
			&chain.CompanyID,
			&chain.Name,
			&chain.EntityType,
			&chain.MinAmount,
			&chain.MaxAmount,
			&chain.Priority,
			&chain.IsActive,
			&chain.CreatedAt,
			&chain.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		chains = append(chains, &chain)
		byID[chain.ID] = &chain
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chains: %w", err)
	}
	if len(chains) == 0 {
		return chains, nil
	}

	ids := make([]interface{}, 0, len(chains))
	for _, c := range chains {
		ids = append(ids, c.ID)
	}
	if err := r.loadSteps(ctx, byID, ids); err != nil {
		return nil, err
	}
	return chains, nil
}

func (r *ChainRepository) loadSteps(ctx context.Context, byID map[string]*entity.ApprovalChain, ids []interface{}) error {
	query := `
		SELECT chain_id, level, role
		FROM approval_chain_steps
		WHERE chain_id IN (` + placeholders(len(ids)) + `)
		ORDER BY chain_id, level
	`
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("failed to query chain steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chainID string
		var step entity.StepTemplate
		if err := rows.Scan(&chainID, &step.Level, &step.Role); err != nil {
			return fmt.Errorf("failed to scan chain step: %w", err)
		}
		if chain, ok := byID[chainID]; ok {
			chain.Steps = append(chain.Steps, step)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate chain steps: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.ChainRepository = (*ChainRepository)(nil)
