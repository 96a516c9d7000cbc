package port

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ChainRepository defines persistence operations for ApprovalChain.
// Lookups return an error wrapping entity.ErrNotFound when the chain does not
// exist inside the given company.
type ChainRepository interface {
	Create(ctx context.Context, chain *entity.ApprovalChain) error
	Update(ctx context.Context, chain *entity.ApprovalChain) error
	GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalChain, error)
	ListByCompany(ctx context.Context, companyID string, includeInactive bool) ([]*entity.ApprovalChain, error)

	// FindActive returns the active chains of a company for one entity type
	FindActive(ctx context.Context, companyID string, entityType entity.EntityType) ([]*entity.ApprovalChain, error)

	// Delete hard-deletes a chain; callers must check IsReferenced first
	Delete(ctx context.Context, companyID, id string) error

	// IsReferenced reports whether any request points at the chain
	IsReferenced(ctx context.Context, id string) (bool, error)
}

// RequestFilter narrows ListRequests results
type RequestFilter struct {
	CompanyID string
	Status    entity.RequestStatus // empty means any
	Limit     int
	Offset    int
}

// RequestRepository defines persistence operations for ApprovalRequest and its steps.
// Returned requests always carry their steps ordered by level.
type RequestRepository interface {
	// Create inserts the request and all of its steps
	Create(ctx context.Context, req *entity.ApprovalRequest) error

	GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error)

	// GetForUpdate loads the aggregate and locks it for the surrounding transaction
	GetForUpdate(ctx context.Context, id string) (*entity.ApprovalRequest, error)

	// Update persists the request's status fields and the given steps.
	// The write only succeeds when the stored version equals req.Version;
	// otherwise it returns an error wrapping entity.ErrInvalidState.
	// On success req.Version is incremented.
	Update(ctx context.Context, req *entity.ApprovalRequest, steps []*entity.ApprovalStep) error

	// FindPendingByEntity returns the pending request for an approvable entity, or nil
	FindPendingByEntity(ctx context.Context, companyID string, entityType entity.EntityType, entityID string) (*entity.ApprovalRequest, error)

	List(ctx context.Context, filter RequestFilter) ([]*entity.ApprovalRequest, error)

	// ListPendingByCurrentRole returns pending requests of a company whose
	// current step requires one of roles
	ListPendingByCurrentRole(ctx context.Context, companyID string, roles []entity.Role) ([]*entity.ApprovalRequest, error)

	// CountPending returns the number of pending requests per company
	CountPending(ctx context.Context) (map[string]int, error)
}

// ActionRepository persists the audit trail
type ActionRepository interface {
	Create(ctx context.Context, action *entity.ApprovalAction) error
	ListByRequest(ctx context.Context, requestID string) ([]*entity.ApprovalAction, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
