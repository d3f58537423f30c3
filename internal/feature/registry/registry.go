// Package registry implements the administrator and required-channel
// registry and the membership check that gates bot usage.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tg_channel_gate_bot/internal/domain"
	"tg_channel_gate_bot/internal/logging"
)

const (
	defaultLookupTimeout     = 3 * time.Second
	defaultLookupConcurrency = 4
)

type adminStore interface {
	InsertIfAbsent(ctx context.Context, admin domain.Administrator) (bool, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	Get(ctx context.Context, userID int64) (domain.Administrator, error)
	List(ctx context.Context) ([]domain.Administrator, error)
	Delete(ctx context.Context, userID int64) (bool, error)
}

type channelStore interface {
	InsertIfAbsent(ctx context.Context, channel domain.RequiredChannel) (domain.RequiredChannel, bool, error)
	List(ctx context.Context) ([]domain.RequiredChannel, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// MembershipSettings bounds the membership lookups issued by CheckMembership.
// Zero values fall back to 3s and 4 concurrent lookups.
type MembershipSettings struct {
	Timeout     time.Duration
	Concurrency int
}

// Registry owns administrator and required channel state. It holds no locks;
// every mutation is a single atomic insert-if-absent or delete-if-exists in
// the backing store.
type Registry struct {
	admins            adminStore
	channels          channelStore
	logger            *logrus.Entry
	lookupTimeout     time.Duration
	lookupConcurrency int
}

// NewRegistry constructs a Registry over the provided stores.
func NewRegistry(admins adminStore, channels channelStore, settings MembershipSettings, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logging.Logger()
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultLookupTimeout
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = defaultLookupConcurrency
	}

	return &Registry{
		admins:            admins,
		channels:          channels,
		logger:            logger,
		lookupTimeout:     settings.Timeout,
		lookupConcurrency: settings.Concurrency,
	}
}

func (r *Registry) ready(ctx context.Context) error {
	if r == nil || r.admins == nil || r.channels == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return nil
}

// authorize fails with domain.ErrPermissionDenied unless actor is an
// administrator. Storage failures are returned as-is so callers do not report
// an outage as a missing privilege.
func (r *Registry) authorize(ctx context.Context, actor int64) error {
	if actor == 0 {
		return fmt.Errorf("actor is required: %w", domain.ErrPermissionDenied)
	}

	ok, err := r.admins.Exists(ctx, actor)
	if err != nil {
		return fmt.Errorf("check admin %d: %w", actor, err)
	}
	if !ok {
		r.logger.WithFields(logging.Fields{
			"event":    "permission_denied",
			"actor_id": actor,
		}).Warn("non-admin attempted admin operation")
		return fmt.Errorf("user %d is not an administrator: %w", actor, domain.ErrPermissionDenied)
	}

	return nil
}

// stamp normalizes timestamps to the precision both storage backends keep.
func stamp(now time.Time) time.Time {
	if now.IsZero() {
		now = time.Now()
	}

	return now.UTC().Truncate(time.Millisecond)
}
