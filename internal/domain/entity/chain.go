package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StepTemplate is one ordered level of an ApprovalChain
type StepTemplate struct {
	Level int  `json:"level"`
	Role  Role `json:"role"`
}

// ApprovalChain is a tenant-defined rule mapping an entity type and amount range
// to an ordered list of role-gated approval levels
type ApprovalChain struct {
	ID         string              `json:"id"`
	CompanyID  string              `json:"company_id"`
	Name       string              `json:"name"`
	EntityType EntityType          `json:"entity_type"`
	MinAmount  decimal.Decimal     `json:"min_amount"`
	MaxAmount  decimal.NullDecimal `json:"max_amount"`
	Steps      []StepTemplate      `json:"steps"`
	Priority   int                 `json:"priority"`
	IsActive   bool                `json:"is_active"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Validate checks the structural rules of a chain definition
func (c *ApprovalChain) Validate() error {
	if strings.TrimSpace(c.CompanyID) == "" {
		return fmt.Errorf("%w: company_id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if !c.EntityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, c.EntityType)
	}
	if c.MinAmount.IsNegative() {
		return fmt.Errorf("%w: min_amount must not be negative", ErrInvalidArgument)
	}
	if c.MaxAmount.Valid && !c.MaxAmount.Decimal.GreaterThan(c.MinAmount) {
		return fmt.Errorf("%w: max_amount %s must be greater than min_amount %s",
			ErrInvalidArgument, c.MaxAmount.Decimal, c.MinAmount)
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("%w: chain must have at least one step", ErrInvalidArgument)
	}

	seen := make(map[int]bool, len(c.Steps))
	for _, step := range c.Steps {
		if step.Level < 1 {
			return fmt.Errorf("%w: step level %d must be >= 1", ErrInvalidArgument, step.Level)
		}
		if seen[step.Level] {
			return fmt.Errorf("%w: duplicate step level %d", ErrInvalidArgument, step.Level)
		}
		if !step.Role.IsValid() {
			return fmt.Errorf("%w: unknown role %q at level %d", ErrInvalidArgument, step.Role, step.Level)
		}
		seen[step.Level] = true
	}

	return nil
}

// Covers reports whether amount falls inside the chain's inclusive range.
// A missing MaxAmount means the range is unbounded above.
func (c *ApprovalChain) Covers(amount decimal.Decimal) bool {
	if amount.LessThan(c.MinAmount) {
		return false
	}
	if c.MaxAmount.Valid && amount.GreaterThan(c.MaxAmount.Decimal) {
		return false
	}
	return true
}

// Matches reports whether the chain is eligible for the given entity type and amount
func (c *ApprovalChain) Matches(entityType EntityType, amount decimal.Decimal) bool {
	return c.IsActive && c.EntityType == entityType && c.Covers(amount)
}

// OrderedSteps returns a copy of the step templates sorted by level
func (c *ApprovalChain) OrderedSteps() []StepTemplate {
	steps := append([]StepTemplate(nil), c.Steps...)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Level < steps[j].Level
	})
	return steps
}

// Outranks reports whether c should be preferred over other when both match.
// Higher priority wins, then the more recently created chain, then the greater ID.
func (c *ApprovalChain) Outranks(other *ApprovalChain) bool {
	if c.Priority != other.Priority {
		return c.Priority > other.Priority
	}
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.After(other.CreatedAt)
	}
	return c.ID > other.ID
}
