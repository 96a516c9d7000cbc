// Package routing decides which approval chain governs a submission and turns
// the chain's templates into concrete request steps.
package routing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Selector picks the chain that applies to a submission
type Selector struct {
	chains port.ChainRepository
	logger Logger
}

// NewSelector creates a new Selector
func NewSelector(chains port.ChainRepository, logger Logger) *Selector {
	return &Selector{
		chains: chains,
		logger: logger,
	}
}

// Select returns the active chain of the company whose inclusive amount range
// covers amount for the entity type. Among several matches the highest
// priority wins, then the most recently created chain. No match is reported
// as entity.ErrNoChainConfigured.
func (s *Selector) Select(ctx context.Context, companyID string, entityType entity.EntityType, amount decimal.Decimal) (*entity.ApprovalChain, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", entity.ErrInvalidArgument, entityType)
	}

	candidates, err := s.chains.FindActive(ctx, companyID, entityType)
	if err != nil {
		return nil, fmt.Errorf("load chains: %w", err)
	}

	var selected *entity.ApprovalChain
	matched := 0
	for _, chain := range candidates {
		if chain.CompanyID != companyID || !chain.Matches(entityType, amount) {
			continue
		}
		matched++
		if selected == nil || chain.Outranks(selected) {
			selected = chain
		}
	}

	if selected == nil {
		s.logger.Warn("No approval chain matched",
			"company_id", companyID,
			"entity_type", entityType,
			"amount", amount.String(),
			"candidates", len(candidates),
		)
		return nil, fmt.Errorf("%w: company %s, %s of %s", entity.ErrNoChainConfigured, companyID, entityType, amount)
	}

	s.logger.Info("Approval chain selected",
		"company_id", companyID,
		"chain_id", selected.ID,
		"priority", selected.Priority,
		"matched", matched,
	)
	return selected, nil
}
