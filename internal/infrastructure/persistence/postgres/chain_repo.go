package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
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
	return &ChainRepository{db: db, logger: logger}
}

const chainColumns = `
	id, company_id, name, entity_type, min_amount::text, max_amount::text,
	priority, is_active, created_at, updated_at
`

// Create inserts a chain with its step templates
func (r *ChainRepository) Create(ctx context.Context, chain *entity.ApprovalChain) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO approval_chains (
				id, company_id, name, entity_type, min_amount, max_amount,
				priority, is_active, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10)
		`
		_, err := r.db.getExecutor(txCtx).Exec(txCtx, query,
			chain.ID,
			chain.CompanyID,
			chain.Name,
			chain.EntityType,
			chain.MinAmount.String(),
			nullableDecimal(chain.MaxAmount),
			chain.Priority,
			chain.IsActive,
			chain.CreatedAt,
			chain.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create chain", zap.String("chain_id", chain.ID), zap.Error(err))
			if hasCode(err, codeUniqueViolation) {
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
			SET name = $3, entity_type = $4, min_amount = $5::numeric, max_amount = $6::numeric,
			    priority = $7, is_active = $8, updated_at = $9
			WHERE id = $1 AND company_id = $2
		`
		exec := r.db.getExecutor(txCtx)
		tag, err := exec.Exec(txCtx, query,
			chain.ID,
			chain.CompanyID,
			chain.Name,
			chain.EntityType,
			chain.MinAmount.String(),
			nullableDecimal(chain.MaxAmount),
			chain.Priority,
			chain.IsActive,
			chain.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to update chain", zap.String("chain_id", chain.ID), zap.Error(err))
			return fmt.Errorf("failed to update chain: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("chain %s: %w", chain.ID, entity.ErrNotFound)
		}

		if _, err := exec.Exec(txCtx, `DELETE FROM approval_chain_steps WHERE chain_id = $1`, chain.ID); err != nil {
			return fmt.Errorf("failed to clear chain steps: %w", err)
		}
		return r.insertSteps(txCtx, chain)
	})
}

func (r *ChainRepository) insertSteps(ctx context.Context, chain *entity.ApprovalChain) error {
	batch := &pgx.Batch{}
	for _, step := range chain.Steps {
		batch.Queue(`INSERT INTO approval_chain_steps (chain_id, level, role) VALUES ($1, $2, $3)`,
			chain.ID, step.Level, step.Role)
	}

	tx := extractTx(ctx)
	if tx == nil {
		return fmt.Errorf("insert chain steps outside transaction")
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chain steps: %w", err)
	}
	return nil
}

// GetByID retrieves a chain of the company
func (r *ChainRepository) GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalChain, error) {
	chains, err := r.query(ctx, `SELECT `+chainColumns+` FROM approval_chains WHERE id = $1 AND company_id = $2`, id, companyID)
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
	query := `
		SELECT ` + chainColumns + `
		FROM approval_chains
		WHERE company_id = $1 AND (is_active OR $2)
		ORDER BY entity_type, priority DESC, created_at DESC, id DESC
	`
	return r.query(ctx, query, companyID, includeInactive)
}

// FindActive returns active chains of the company for one entity type
func (r *ChainRepository) FindActive(ctx context.Context, companyID string, entityType entity.EntityType) ([]*entity.ApprovalChain, error) {
	query := `
		SELECT ` + chainColumns + `
		FROM approval_chains
		WHERE company_id = $1 AND entity_type = $2 AND is_active
		ORDER BY priority DESC, created_at DESC, id DESC
	`
	return r.query(ctx, query, companyID, entityType)
}

// Delete hard-deletes a chain of the company
func (r *ChainRepository) Delete(ctx context.Context, companyID, id string) error {
	tag, err := r.db.getExecutor(ctx).Exec(ctx,
		`DELETE FROM approval_chains WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return fmt.Errorf("%w: chain %s is referenced by requests", entity.ErrInvalidState, id)
		}
		r.logger.Error("Failed to delete chain", zap.String("chain_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete chain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chain %s: %w", id, entity.ErrNotFound)
	}
	return nil
}

// IsReferenced reports whether any request points at the chain
func (r *ChainRepository) IsReferenced(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.getExecutor(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM approval_requests WHERE chain_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check chain references: %w", err)
	}
	return exists, nil
}

func (r *ChainRepository) query(ctx context.Context, query string, args ...any) ([]*entity.ApprovalChain, error) {
	rows, err := r.db.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query chains", zap.Error(err))
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	var chains []*entity.ApprovalChain
	byID := make(map[string]*entity.ApprovalChain)
	ids := []string{}
	for rows.Next() {
		var chain entity.ApprovalChain
		var minAmount string
		var maxAmount *string
		if err := rows.Scan(
			&chain.ID,
			&chain.CompanyID,
			&chain.Name,
			&chain.EntityType,
			&minAmount,
			&maxAmount,
			&chain.Priority,
			&chain.IsActive,
			&chain.CreatedAt,
			&chain.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		if chain.MinAmount, err = decimal.NewFromString(minAmount); err != nil {
			return nil, fmt.Errorf("chain %s min_amount: %w", chain.ID, err)
		}
		if chain.MaxAmount, err = parseNullDecimal(maxAmount); err != nil {
			return nil, fmt.Errorf("chain %s max_amount: %w", chain.ID, err)
		}
		chains = append(chains, &chain)
		byID[chain.ID] = &chain
		ids = append(ids, chain.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chains: %w", err)
	}
	if len(chains) == 0 {
		return chains, nil
	}

	stepRows, err := r.db.getExecutor(ctx).Query(ctx, `
		SELECT chain_id, level, role
		FROM approval_chain_steps
		WHERE chain_id = ANY($1)
		ORDER BY chain_id, level
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain steps: %w", err)
	}
	defer stepRows.Close()

	for stepRows.Next() {
		var chainID string
		var step entity.StepTemplate
		if err := stepRows.Scan(&chainID, &step.Level, &step.Role); err != nil {
			return nil, fmt.Errorf("failed to scan chain step: %w", err)
		}
		if chain, ok := byID[chainID]; ok {
			chain.Steps = append(chain.Steps, step)
		}
	}
	if err := stepRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chain steps: %w", err)
	}
	return chains, nil
}

// nullableDecimal renders an optional amount for a ::numeric parameter
func nullableDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// Verify interface compliance
var _ port.ChainRepository = (*ChainRepository)(nil)
