package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tg_channel_gate_bot/internal/config"
	"tg_channel_gate_bot/internal/domain"
)

const sqlSlowThreshold = 200 * time.Millisecond

// dialectorFor is overridable for tests.
var dialectorFor = func(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case config.DriverSQLite:
		return sqlite.Open(dsn), nil
	case config.DriverPostgres:
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// SQLManager owns a GORM handle for the relational backends.
type SQLManager struct {
	db *gorm.DB
}

// NewSQLManager opens the configured relational database and migrates the
// users, admins and required_channels tables.
func NewSQLManager(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*SQLManager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	dialector, err := dialectorFor(cfg.StoreDriver, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{}
	if logger != nil {
		gormCfg.Logger = gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             sqlSlowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.StoreDriver, err)
	}

	manager := &SQLManager{db: db}

	if cfg.StoreDriver == config.DriverSQLite {
		// SQLite serialises writers; a single connection also keeps
		// ":memory:" databases from splitting across the pool.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := manager.Ping(ctx); err != nil {
		_ = manager.Close(ctx)
		return nil, err
	}

	if err := manager.Migrate(ctx); err != nil {
		_ = manager.Close(ctx)
		return nil, err
	}

	return manager, nil
}

// NewSQLManagerFromDB wraps an already-open GORM handle.
func NewSQLManagerFromDB(db *gorm.DB) *SQLManager {
	return &SQLManager{db: db}
}

// DB returns the underlying GORM handle.
func (m *SQLManager) DB() *gorm.DB {
	return m.db
}

// Migrate creates or updates the registry tables.
func (m *SQLManager) Migrate(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("sql manager is not initialized")
	}

	if err := m.db.WithContext(ctx).AutoMigrate(&domain.User{}, &domain.Administrator{}, &domain.RequiredChannel{}); err != nil {
		return fmt.Errorf("migrate tables: %w", err)
	}

	return nil
}

// Ping verifies the database connection is alive.
func (m *SQLManager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("sql manager is not initialized")
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sql: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (m *SQLManager) Close(ctx context.Context) error {
	if m == nil || m.db == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	return sqlDB.Close()
}

// Admins returns the admin repository backed by this database.
func (m *SQLManager) Admins() *SQLAdminRepository {
	return &SQLAdminRepository{db: m.db}
}

// RequiredChannels returns the required channel repository backed by this database.
func (m *SQLManager) RequiredChannels() *SQLChannelRepository {
	return &SQLChannelRepository{db: m.db}
}

// Users returns the user repository backed by this database.
func (m *SQLManager) Users() *SQLUserRepository {
	return &SQLUserRepository{db: m.db}
}
