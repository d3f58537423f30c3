package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg_channel_gate_bot/internal/domain"
	"tg_channel_gate_bot/internal/logging"
)

// Bootstrap seeds adminID as the deployment's administrator. It skips the
// privilege check and is a no-op when the record already exists.
func (r *Registry) Bootstrap(ctx context.Context, adminID int64, now time.Time) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	if adminID <= 0 {
		return fmt.Errorf("bootstrap admin id %d: %w", adminID, domain.ErrInvalidArgument)
	}

	inserted, err := r.admins.InsertIfAbsent(ctx, domain.Administrator{
		UserID:  adminID,
		AddedBy: adminID,
		AddedAt: stamp(now),
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "admin_bootstrap",
		"user_id":  adminID,
		"inserted": inserted,
	}).Info("ensured bootstrap administrator")

	return nil
}

// IsAdmin reports whether userID is an administrator. Storage errors are
// logged and reported as false.
func (r *Registry) IsAdmin(ctx context.Context, userID int64) bool {
	if r.ready(ctx) != nil || userID == 0 {
		return false
	}

	ok, err := r.admins.Exists(ctx, userID)
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "admin_check_failed",
			"user_id": userID,
		}).WithError(err).Error("failed to check admin status")
		return false
	}

	return ok
}

// GrantAdmin makes target an administrator on behalf of actor. Granting an
// existing administrator is a no-op and keeps the original record.
func (r *Registry) GrantAdmin(ctx context.Context, actor, target int64, now time.Time) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	if err := r.authorize(ctx, actor); err != nil {
		return err
	}
	if target <= 0 {
		return fmt.Errorf("target user id %d: %w", target, domain.ErrInvalidArgument)
	}

	inserted, err := r.admins.InsertIfAbsent(ctx, domain.Administrator{
		UserID:  target,
		AddedBy: actor,
		AddedAt: stamp(now),
	})
	if err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "admin_granted",
		"actor_id": actor,
		"user_id":  target,
		"inserted": inserted,
	}).Info("granted administrator")

	return nil
}

// RevokeAdmin removes target's administrator record. The bootstrap
// administrator cannot be revoked.
func (r *Registry) RevokeAdmin(ctx context.Context, actor, target int64) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	if err := r.authorize(ctx, actor); err != nil {
		return err
	}
	if target <= 0 {
		return fmt.Errorf("target user id %d: %w", target, domain.ErrInvalidArgument)
	}

	admin, err := r.admins.Get(ctx, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("user %d is not an administrator: %w", target, domain.ErrNotFound)
		}
		return fmt.Errorf("load admin: %w", err)
	}
	if admin.IsBootstrap() {
		return fmt.Errorf("user %d is the bootstrap administrator: %w", target, domain.ErrInvalidArgument)
	}

	deleted, err := r.admins.Delete(ctx, target)
	if err != nil {
		return fmt.Errorf("revoke admin: %w", err)
	}
	if !deleted {
		return fmt.Errorf("user %d is not an administrator: %w", target, domain.ErrNotFound)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "admin_revoked",
		"actor_id": actor,
		"user_id":  target,
	}).Info("revoked administrator")

	return nil
}

// ListAdmins returns administrators ordered by added_at, ties by user_id.
func (r *Registry) ListAdmins(ctx context.Context) ([]domain.Administrator, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}

	admins, err := r.admins.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}

	return admins, nil
}
