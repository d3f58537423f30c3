package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tg_channel_gate_bot/internal/config"
	"tg_channel_gate_bot/internal/domain"
)

// AdminRepository is implemented by the Mongo and SQL admin stores.
type AdminRepository interface {
	InsertIfAbsent(ctx context.Context, admin domain.Administrator) (bool, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	Get(ctx context.Context, userID int64) (domain.Administrator, error)
	List(ctx context.Context) ([]domain.Administrator, error)
	Delete(ctx context.Context, userID int64) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// ChannelRepository is implemented by the Mongo and SQL required channel stores.
type ChannelRepository interface {
	InsertIfAbsent(ctx context.Context, channel domain.RequiredChannel) (domain.RequiredChannel, bool, error)
	List(ctx context.Context) ([]domain.RequiredChannel, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// UserRepository is implemented by the Mongo and SQL user stores.
type UserRepository interface {
	Touch(ctx context.Context, user domain.User, now time.Time) (bool, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Count(ctx context.Context) (int64, error)
}

type lifecycle interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Backend bundles the repositories of the configured storage driver.
type Backend struct {
	Driver   string
	Admins   AdminRepository
	Channels ChannelRepository
	Users    UserRepository
	Stats    *StatsProvider

	conn lifecycle
}

// Open connects to the backend selected by cfg.StoreDriver and prepares its
// schema (Mongo indexes or SQL migrations).
func Open(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Backend, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	switch cfg.StoreDriver {
	case config.DriverMongo:
		manager, err := NewManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := manager.EnsureBaseIndexes(ctx); err != nil {
			_ = manager.Close(ctx)
			return nil, err
		}

		return newBackend(cfg.StoreDriver, manager,
			NewMongoAdminRepository(manager.Admins()),
			NewMongoChannelRepository(manager.RequiredChannels(), manager.Counters()),
			NewMongoUserRepository(manager.Users()),
		), nil
	case config.DriverSQLite, config.DriverPostgres:
		manager, err := NewSQLManager(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}

		return newBackend(cfg.StoreDriver, manager,
			manager.Admins(),
			manager.RequiredChannels(),
			manager.Users(),
		), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func newBackend(driver string, conn lifecycle, admins AdminRepository, channels ChannelRepository, users UserRepository) *Backend {
	return &Backend{
		Driver:   driver,
		Admins:   admins,
		Channels: channels,
		Users:    users,
		Stats:    NewStatsProvider(users, admins, channels),
		conn:     conn,
	}
}

// Ping checks the underlying connection; it backs the health endpoint.
func (b *Backend) Ping(ctx context.Context) error {
	if b == nil || b.conn == nil {
		return errors.New("store backend is not initialized")
	}

	return b.conn.Ping(ctx)
}

// Close releases the underlying connection.
func (b *Backend) Close(ctx context.Context) error {
	if b == nil || b.conn == nil {
		return nil
	}

	return b.conn.Close(ctx)
}
