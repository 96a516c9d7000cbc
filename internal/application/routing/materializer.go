package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ApproverPool is the set of users allowed to act on one step, resolved at
// the moment of the query
type ApproverPool struct {
	Level   int         `json:"level"`
	Role    entity.Role `json:"role"`
	UserIDs []string    `json:"user_ids"`
}

// Empty reports that nobody can currently act on the step
func (p *ApproverPool) Empty() bool {
	return len(p.UserIDs) == 0
}

// Contains reports whether userID is in the pool
func (p *ApproverPool) Contains(userID string) bool {
	for _, id := range p.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Materializer copies chain templates into request steps and resolves the
// eligible approvers of a step through the role directory
type Materializer struct {
	directory port.RoleDirectory
	logger    Logger
}

// NewMaterializer creates a new Materializer
func NewMaterializer(directory port.RoleDirectory, logger Logger) *Materializer {
	return &Materializer{
		directory: directory,
		logger:    logger,
	}
}

// Materialize creates one pending step per chain template, ordered by level,
// and attaches them to req. Approver pools are never stored on the steps.
func (m *Materializer) Materialize(chain *entity.ApprovalChain, req *entity.ApprovalRequest) []*entity.ApprovalStep {
	templates := chain.OrderedSteps()
	steps := make([]*entity.ApprovalStep, 0, len(templates))
	for _, tmpl := range templates {
		steps = append(steps, &entity.ApprovalStep{
			ID:           uuid.NewString(),
			RequestID:    req.ID,
			Level:        tmpl.Level,
			RequiredRole: tmpl.Role,
			Status:       entity.StepStatusPending,
		})
	}

	req.ChainID = chain.ID
	req.Steps = steps
	return steps
}

// ResolvePool returns the current holders of role in the company.
// A directory failure is reported as entity.ErrUnavailable so callers fail closed.
func (m *Materializer) ResolvePool(ctx context.Context, companyID string, step *entity.ApprovalStep) (*ApproverPool, error) {
	users, err := m.directory.UsersWithRole(ctx, companyID, step.RequiredRole)
	if err != nil {
		return nil, fmt.Errorf("resolve %s pool for level %d: %w", step.RequiredRole, step.Level, asUnavailable(err))
	}

	return &ApproverPool{
		Level:   step.Level,
		Role:    step.RequiredRole,
		UserIDs: users,
	}, nil
}

// UnstaffedLevels returns the levels of req whose role currently has no holder.
// An empty pool does not block creation; the result is informational.
func (m *Materializer) UnstaffedLevels(ctx context.Context, req *entity.ApprovalRequest) ([]int, error) {
	cache := make(map[entity.Role]bool)
	var levels []int

	for _, step := range req.Steps {
		empty, seen := cache[step.RequiredRole]
		if !seen {
			pool, err := m.ResolvePool(ctx, req.CompanyID, step)
			if err != nil {
				return nil, err
			}
			empty = pool.Empty()
			cache[step.RequiredRole] = empty
		}
		if empty {
			levels = append(levels, step.Level)
		}
	}

	if len(levels) > 0 {
		m.logger.Warn("Request has levels without eligible approvers",
			"request_id", req.ID,
			"company_id", req.CompanyID,
			"levels", levels,
		)
	}
	return levels, nil
}

// asUnavailable makes sure directory failures carry entity.ErrUnavailable
func asUnavailable(err error) error {
	if errors.Is(err, entity.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", entity.ErrUnavailable, err)
}
