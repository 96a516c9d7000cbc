package sqlite

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
	return &MemberRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert grants role to a user in a company, reactivating a revoked grant
func (r *MemberRepository) Upsert(ctx context.Context, m entity.Membership) error {
	query := `
		INSERT INTO company_members (company_id, user_id, role, is_active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (company_id, user_id, role) DO UPDATE SET is_active = 1
	`
	if _, err := r.db.getExecutor(ctx).ExecContext(ctx, query, m.CompanyID, m.UserID, m.Role); err != nil {
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
	query := `
		SELECT user_id FROM company_members
		WHERE company_id = ? AND role = ? AND is_active = 1
		ORDER BY user_id
	`
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, companyID, role)
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
	query := `
		SELECT company_id, user_id, role FROM company_members
		WHERE user_id = ? AND is_active = 1
		ORDER BY company_id, role
	`
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, userID)
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
