package port

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// RoleDirectory answers who holds which role in which company.
// Implementations return an error wrapping entity.ErrUnavailable when the
// directory cannot be consulted; an empty result is a valid answer.
type RoleDirectory interface {
	UsersWithRole(ctx context.Context, companyID string, role entity.Role) ([]string, error)
	MembershipsOf(ctx context.Context, userID string) ([]entity.Membership, error)
}

// EventPublisher delivers transition events to an outside system
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
}
