// Package user keeps the users store current with every interaction.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_channel_gate_bot/internal/domain"
	"tg_channel_gate_bot/internal/logging"
)

type userStore interface {
	Touch(ctx context.Context, user domain.User, now time.Time) (bool, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
}

// Registrar ensures users are present in storage and keeps their profile and
// last-seen timestamp updated on every interaction.
type Registrar struct {
	users  userStore
	logger *logrus.Entry
	now    func() time.Time
}

// NewRegistrar constructs a Registrar for the provided user store.
func NewRegistrar(users userStore, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureUser upserts the profile and reports whether the user is new.
func (r *Registrar) EnsureUser(ctx context.Context, profile domain.User) (bool, error) {
	if r == nil || r.users == nil {
		return false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if profile.UserID == 0 {
		return false, errors.New("user id is required")
	}

	profile.Username = strings.TrimSpace(profile.Username)
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)

	now := r.now().UTC().Truncate(time.Millisecond)

	created, err := r.users.Touch(ctx, profile, now)
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", err)
	}

	if created {
		r.logger.WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": profile.UserID,
		}).Info("registered new user")
		return true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_seen",
		"user_id": profile.UserID,
	}).Debug("updated user last seen")

	return false, nil
}

// DisplayName resolves a readable label for userID, falling back to the
// numeric id when the user is unknown or the lookup fails.
func (r *Registrar) DisplayName(ctx context.Context, userID int64) string {
	fallback := fmt.Sprintf("%d", userID)
	if r == nil || r.users == nil || ctx == nil {
		return fallback
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WithFields(logging.Fields{
				"event":   "user_lookup_failed",
				"user_id": userID,
			}).WithError(err).Warn("failed to resolve user name")
		}
		return fallback
	}

	if name := user.DisplayName(); name != "" {
		return name
	}

	return fallback
}
