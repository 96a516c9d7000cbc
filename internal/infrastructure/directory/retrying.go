package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// RetryConfig controls lookup retries
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Retrying retries failed directory lookups with exponential backoff.
// Lookups are read-only, so repeating them is safe.
type Retrying struct {
	next   port.RoleDirectory
	cfg    RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next with retries
func NewRetrying(next port.RoleDirectory, cfg RetryConfig, logger *zap.Logger) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	return &Retrying{
		next:   next,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// UsersWithRole implements port.RoleDirectory
func (r *Retrying) UsersWithRole(ctx context.Context, companyID string, role entity.Role) ([]string, error) {
	var users []string
	err := r.do(ctx, "users_with_role", func() error {
		var err error
		users, err = r.next.UsersWithRole(ctx, companyID, role)
		return err
	})
	return users, err
}

// MembershipsOf implements port.RoleDirectory
func (r *Retrying) MembershipsOf(ctx context.Context, userID string) ([]entity.Membership, error) {
	var memberships []entity.Membership
	err := r.do(ctx, "memberships_of", func() error {
		var err error
		memberships, err = r.next.MembershipsOf(ctx, userID)
		return err
	})
	return memberships, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := r.cfg.InitialBackoff

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// Cancellation is the caller's decision, not a directory outage
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if attempt < r.cfg.MaxAttempts {
			r.logger.Info("Retrying directory lookup",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			if err := r.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			if backoff > r.cfg.MaxBackoff {
				backoff = r.cfg.MaxBackoff
			}
		}
	}

	r.logger.Error("Directory lookup failed after retries",
		zap.String("op", op),
		zap.Int("max_attempts", r.cfg.MaxAttempts),
		zap.Error(lastErr))

	if errors.Is(lastErr, entity.ErrUnavailable) {
		return fmt.Errorf("%s failed after %d attempts: %w", op, r.cfg.MaxAttempts, lastErr)
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", entity.ErrUnavailable, op, r.cfg.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ port.RoleDirectory = (*Retrying)(nil)
