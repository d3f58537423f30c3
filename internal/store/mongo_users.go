package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_channel_gate_bot/internal/domain"
)

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// MongoUserRepository persists and retrieves users in MongoDB.
type MongoUserRepository struct {
	collection userCollection
}

// NewMongoUserRepository constructs a MongoUserRepository.
func NewMongoUserRepository(collection userCollection) *MongoUserRepository {
	return &MongoUserRepository{collection: collection}
}

// Touch upserts the user's profile, refreshing last_seen_at on every call and
// setting first_seen_at only on insert. It reports whether the user was new.
func (r *MongoUserRepository) Touch(ctx context.Context, user domain.User, now time.Time) (bool, error) {
	if r == nil || r.collection == nil {
		return false, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if user.UserID == 0 {
		return false, errors.New("user_id is required")
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": user.UserID},
		bson.M{
			"$set": bson.M{
				"username":     user.Username,
				"first_name":   user.FirstName,
				"last_name":    user.LastName,
				"last_seen_at": now,
			},
			"$setOnInsert": bson.M{
				"user_id":       user.UserID,
				"first_seen_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("upsert user: %w", err)
	}

	return result != nil && result.UpsertedCount > 0, nil
}

// GetByID fetches a user by Telegram user_id.
func (r *MongoUserRepository) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	if r == nil || r.collection == nil {
		return domain.User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return domain.User{}, errors.New("context is required")
	}
	if userID == 0 {
		return domain.User{}, errors.New("user_id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return domain.User{}, errors.New("find user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}

	var user domain.User
	if err := result.Decode(&user); err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}

	return user, nil
}

// Count returns the number of known users.
func (r *MongoUserRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}
