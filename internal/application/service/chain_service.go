package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ChainInput carries the editable fields of an approval chain
type ChainInput struct {
	Name       string                `json:"name"`
	EntityType entity.EntityType     `json:"entity_type"`
	MinAmount  decimal.Decimal       `json:"min_amount"`
	MaxAmount  decimal.NullDecimal   `json:"max_amount"`
	Steps      []entity.StepTemplate `json:"steps"`
	Priority   int                   `json:"priority"`
	IsActive   *bool                 `json:"is_active,omitempty"`
}

func (in ChainInput) apply(chain *entity.ApprovalChain) {
	chain.Name = strings.TrimSpace(in.Name)
	chain.EntityType = in.EntityType
	chain.MinAmount = in.MinAmount
	chain.MaxAmount = in.MaxAmount
	chain.Steps = append([]entity.StepTemplate(nil), in.Steps...)
	chain.Priority = in.Priority
	if in.IsActive != nil {
		chain.IsActive = *in.IsActive
	}
}

// ChainService manages the approval chains of a company
type ChainService interface {
	ListChains(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error)
	GetChain(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error)
	CreateChain(ctx context.Context, companyID string, in ChainInput) (*entity.ApprovalChain, error)
	UpdateChain(ctx context.Context, companyID, chainID string, in ChainInput) (*entity.ApprovalChain, error)
	DeactivateChain(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error)

	// DeleteChain hard-deletes a chain no request refers to
	DeleteChain(ctx context.Context, companyID, chainID string) error
}

type chainServiceImpl struct {
	chainRepo port.ChainRepository
	txManager port.TransactionManager
	logger    Logger
	now       func() time.Time
}

// NewChainService creates a new ChainService
func NewChainService(chainRepo port.ChainRepository, txManager port.TransactionManager, logger Logger) ChainService {
	return &chainServiceImpl{
		chainRepo: chainRepo,
		txManager: txManager,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *chainServiceImpl) ListChains(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, fmt.Errorf("%w: company_id is required", entity.ErrInvalidArgument)
	}
	return s.chainRepo.ListByCompany(ctx, companyID, includeInactive)
}

func (s *chainServiceImpl) GetChain(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error) {
	return s.chainRepo.GetByID(ctx, companyID, chainID)
}

func (s *chainServiceImpl) CreateChain(ctx context.Context, companyID string, in ChainInput) (*entity.ApprovalChain, error) {
	now := s.now()
	chain := &entity.ApprovalChain{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(chain)

	if err := chain.Validate(); err != nil {
		return nil, err
	}

	if err := s.chainRepo.Create(ctx, chain); err != nil {
		s.logger.Error("Failed to create chain", "company_id", companyID, "error", err)
		return nil, fmt.Errorf("create chain: %w", err)
	}

	s.logger.Info("Chain created",
		"chain_id", chain.ID,
		"company_id", companyID,
		"entity_type", chain.EntityType,
		"levels", len(chain.Steps),
	)
	return chain, nil
}

// UpdateChain replaces the editable fields. Requests already created keep
// the steps they were materialized with.
func (s *chainServiceImpl) UpdateChain(ctx context.Context, companyID, chainID string, in ChainInput) (*entity.ApprovalChain, error) {
	var chain *entity.ApprovalChain
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.chainRepo.GetByID(txCtx, companyID, chainID)
		if err != nil {
			return err
		}

		in.apply(existing)
		existing.UpdatedAt = s.now()
		if err := existing.Validate(); err != nil {
			return err
		}
		if err := s.chainRepo.Update(txCtx, existing); err != nil {
			return fmt.Errorf("update chain: %w", err)
		}
		chain = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Chain updated", "chain_id", chainID, "company_id", companyID)
	return chain, nil
}

func (s *chainServiceImpl) DeactivateChain(ctx context.Context, companyID, chainID string) (*entity.ApprovalChain, error) {
	var chain *entity.ApprovalChain
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.chainRepo.GetByID(txCtx, companyID, chainID)
		if err != nil {
			return err
		}
		if !existing.IsActive {
			chain = existing
			return nil
		}

		existing.IsActive = false
		existing.UpdatedAt = s.now()
		if err := s.chainRepo.Update(txCtx, existing); err != nil {
			return fmt.Errorf("deactivate chain: %w", err)
		}
		chain = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Chain deactivated", "chain_id", chainID, "company_id", companyID)
	return chain, nil
}

func (s *chainServiceImpl) DeleteChain(ctx context.Context, companyID, chainID string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.chainRepo.GetByID(txCtx, companyID, chainID); err != nil {
			return err
		}

		referenced, err := s.chainRepo.IsReferenced(txCtx, chainID)
		if err != nil {
			return fmt.Errorf("check chain references: %w", err)
		}
		if referenced {
			return fmt.Errorf("%w: chain %s is referenced by requests, deactivate it instead",
				entity.ErrInvalidState, chainID)
		}

		return s.chainRepo.Delete(txCtx, companyID, chainID)
	})
	if err != nil {
		s.logger.Warn("Chain not deleted", "chain_id", chainID, "company_id", companyID, "error", err)
		return err
	}

	s.logger.Info("Chain deleted", "chain_id", chainID, "company_id", companyID)
	return nil
}
