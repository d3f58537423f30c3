package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tg_channel_gate_bot/internal/domain"
)

// SQLAdminRepository persists administrators in the admins table.
type SQLAdminRepository struct {
	db *gorm.DB
}

// InsertIfAbsent inserts the administrator with ON CONFLICT DO NOTHING and
// reports whether a row was written.
func (r *SQLAdminRepository) InsertIfAbsent(ctx context.Context, admin domain.Administrator) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if admin.UserID == 0 {
		return false, errors.New("user_id is required")
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&admin)
	if result.Error != nil {
		return false, fmt.Errorf("insert admin: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Exists reports whether user_id holds an admin row.
func (r *SQLAdminRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Administrator{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count admin: %w", err)
	}

	return count > 0, nil
}

// Get fetches the admin row for user_id, wrapping domain.ErrNotFound when absent.
func (r *SQLAdminRepository) Get(ctx context.Context, userID int64) (domain.Administrator, error) {
	if r == nil || r.db == nil {
		return domain.Administrator{}, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return domain.Administrator{}, errors.New("context is required")
	}

	var admin domain.Administrator
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Administrator{}, fmt.Errorf("admin %d: %w", userID, domain.ErrNotFound)
		}
		return domain.Administrator{}, fmt.Errorf("find admin: %w", err)
	}

	return admin, nil
}

// List returns every administrator ordered by added_at then user_id.
func (r *SQLAdminRepository) List(ctx context.Context) ([]domain.Administrator, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	admins := make([]domain.Administrator, 0)
	if err := r.db.WithContext(ctx).Order("added_at ASC").Order("user_id ASC").Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("find admins: %w", err)
	}

	return admins, nil
}

// Delete removes the admin row for user_id and reports whether one existed.
func (r *SQLAdminRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Administrator{})
	if result.Error != nil {
		return false, fmt.Errorf("delete admin: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Count returns the number of administrators.
func (r *SQLAdminRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("admin repository is not initialized")
	}

	return countRows(ctx, r.db, &domain.Administrator{}, "admins")
}

// SQLChannelRepository persists required channels in the required_channels
// table. Sequential ids come from the table's autoincrement key.
type SQLChannelRepository struct {
	db *gorm.DB
}

// InsertIfAbsent inserts the channel unless channel_id is already registered,
// in which case the stored row is returned with inserted=false.
func (r *SQLChannelRepository) InsertIfAbsent(ctx context.Context, channel domain.RequiredChannel) (domain.RequiredChannel, bool, error) {
	if r == nil || r.db == nil {
		return domain.RequiredChannel{}, false, errors.New("channel repository is not initialized")
	}
	if ctx == nil {
		return domain.RequiredChannel{}, false, errors.New("context is required")
	}
	if channel.ChannelID == "" {
		return domain.RequiredChannel{}, false, errors.New("channel_id is required")
	}

	channel.ID = 0
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoNothing: true,
	}).Create(&channel)
	if result.Error != nil {
		return domain.RequiredChannel{}, false, fmt.Errorf("insert required channel: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return channel, true, nil
	}

	var existing domain.RequiredChannel
	if err := r.db.WithContext(ctx).Where("channel_id = ?", channel.ChannelID).First(&existing).Error; err != nil {
		return domain.RequiredChannel{}, false, fmt.Errorf("find required channel: %w", err)
	}

	return existing, false, nil
}

// List returns every required channel in registration order.
func (r *SQLChannelRepository) List(ctx context.Context) ([]domain.RequiredChannel, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("channel repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	channels := make([]domain.RequiredChannel, 0)
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("find required channels: %w", err)
	}

	return channels, nil
}

// Delete removes the channel with the given id and reports whether it existed.
func (r *SQLChannelRepository) Delete(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("channel repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.RequiredChannel{})
	if result.Error != nil {
		return false, fmt.Errorf("delete required channel: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Count returns the number of required channels.
func (r *SQLChannelRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("channel repository is not initialized")
	}

	return countRows(ctx, r.db, &domain.RequiredChannel{}, "required channels")
}

// SQLUserRepository persists users in the users table.
type SQLUserRepository struct {
	db *gorm.DB
}

// Touch upserts the user's profile and last_seen_at, keeping first_seen_at
// from the original insert. It reports whether the user was new.
func (r *SQLUserRepository) Touch(ctx context.Context, user domain.User, now time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if user.UserID == 0 {
		return false, errors.New("user_id is required")
	}

	var existing int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", user.UserID).Count(&existing).Error; err != nil {
		return false, fmt.Errorf("count user: %w", err)
	}

	user.FirstSeenAt = now
	user.LastSeenAt = now

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "last_seen_at"}),
	}).Create(&user).Error; err != nil {
		return false, fmt.Errorf("upsert user: %w", err)
	}

	return existing == 0, nil
}

// GetByID fetches a user by Telegram user_id.
func (r *SQLUserRepository) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	if r == nil || r.db == nil {
		return domain.User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return domain.User{}, errors.New("context is required")
	}
	if userID == 0 {
		return domain.User{}, errors.New("user_id is required")
	}

	var user domain.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}

	return user, nil
}

// Count returns the number of known users.
func (r *SQLUserRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("user repository is not initialized")
	}

	return countRows(ctx, r.db, &domain.User{}, "users")
}

func countRows(ctx context.Context, db *gorm.DB, model interface{}, label string) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	var count int64
	if err := db.WithContext(ctx).Model(model).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}

	return count, nil
}
