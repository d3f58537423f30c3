// Package store encapsulates storage client management and the repositories
// backing the admin and required-channel registry.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_channel_gate_bot/internal/config"
)

// Collection names used across the bot.
const (
	CollectionUsers            = "users"
	CollectionAdmins           = "admins"
	CollectionRequiredChannels = "required_channels"
	CollectionCounters         = "counters"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Users returns the users collection handle.
func (m *Manager) Users() *mongo.Collection {
	return m.Collection(CollectionUsers)
}

// Admins returns the admins collection handle.
func (m *Manager) Admins() *mongo.Collection {
	return m.Collection(CollectionAdmins)
}

// RequiredChannels returns the required_channels collection handle.
func (m *Manager) RequiredChannels() *mongo.Collection {
	return m.Collection(CollectionRequiredChannels)
}

// Counters returns the collection holding sequential id counters.
func (m *Manager) Counters() *mongo.Collection {
	return m.Collection(CollectionCounters)
}

// Ping verifies the deployment is reachable on the primary.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	return nil
}

// EnsureBaseIndexes creates the unique indexes the registry relies on for
// insert-if-absent semantics. Collections are created implicitly if they do
// not already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	plan := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{coll: m.Users(), models: []mongo.IndexModel{uniqueIndex("user_id", "user_id_unique")}},
		{coll: m.Admins(), models: []mongo.IndexModel{uniqueIndex("user_id", "user_id_unique")}},
		{coll: m.RequiredChannels(), models: []mongo.IndexModel{
			uniqueIndex("id", "id_unique"),
			uniqueIndex("channel_id", "channel_id_unique"),
		}},
	}

	for _, step := range plan {
		if _, err := createIndexes(ctx, step.coll, step.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", step.coll.Name(), err)
		}
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}

func uniqueIndex(key, name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: key, Value: 1}},
		Options: options.Index().
			SetName(name).
			SetUnique(true),
	}
}
