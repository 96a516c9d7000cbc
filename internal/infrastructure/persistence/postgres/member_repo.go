package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// MemberRepository is a role directory backed by the company_members table
type MemberRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *DB, logger *zap.Logger) *MemberRepository {
	return &MemberRepository{db: db, logger: logger}
}

// Upsert grants role to a user in a company, reactivating a revoked grant
func (r *MemberRepository) Upsert(ctx context.Context, m entity.Membership) error {
	query := `
		INSERT INTO company_members (company_id, user_id, role, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (company_id, user_id, role) DO UPDATE SET is_active = TRUE
	`
	if _, err := r.db.getExecutor(ctx).Exec(ctx, query, m.CompanyID, m.UserID, m.Role); err != nil {
		r.logger.Error("Failed to upsert member",
			zap.String("company_id", m.CompanyID),
			zap.String("user_id", m.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// UsersWithRole lists active holders of role in the company
func (r *MemberRepository) UsersWithRole(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
	rows, err := r.db.getExecutor(ctx).Query(ctx, `
		SELECT user_id FROM company_members
		WHERE company_id = $1 AND role = $2 AND is_active
		ORDER BY user_id
	`, companyID, role)
	if err != nil {
		return nil, fmt.Errorf("%w: query members: %v", entity.ErrUnavailable, err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// MembershipsOf lists the active role grants of a user across companies
func (r *MemberRepository) MembershipsOf(ctx context.Context, userID string) ([]entity.Membership, error) {
	rows, err := r.db.getExecutor(ctx).Query(ctx, `
		SELECT company_id, user_id, role FROM company_members
		WHERE user_id = $1 AND is_active
		ORDER BY company_id, role
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query memberships: %v", entity.ErrUnavailable, err)
	}
	defer rows.Close()

	var memberships []entity.Membership
	for rows.Next() {
		var m entity.Membership
		if err := rows.Scan(&m.CompanyID, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// Verify interface compliance
var _ port.RoleDirectory = (*MemberRepository)(nil)
