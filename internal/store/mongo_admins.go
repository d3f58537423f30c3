package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_channel_gate_bot/internal/domain"
)

type adminCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// MongoAdminRepository persists administrators in MongoDB.
type MongoAdminRepository struct {
	collection adminCollection
}

// NewMongoAdminRepository constructs a MongoAdminRepository.
func NewMongoAdminRepository(collection adminCollection) *MongoAdminRepository {
	return &MongoAdminRepository{collection: collection}
}

// InsertIfAbsent stores the administrator unless a record for the same
// user_id already exists. It reports whether a new record was written.
func (r *MongoAdminRepository) InsertIfAbsent(ctx context.Context, admin domain.Administrator) (bool, error) {
	if r == nil || r.collection == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if admin.UserID == 0 {
		return false, errors.New("user_id is required")
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": admin.UserID},
		bson.M{"$setOnInsert": bson.M{
			"user_id":  admin.UserID,
			"added_by": admin.AddedBy,
			"added_at": admin.AddedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// A concurrent upsert for the same user_id lost the race on the
		// unique index; the row exists, which is all the caller asked for.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert admin: %w", err)
	}

	return result != nil && result.UpsertedCount > 0, nil
}

// Exists reports whether user_id holds an admin record.
func (r *MongoAdminRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	if r == nil || r.collection == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count admin: %w", err)
	}

	return count > 0, nil
}

// Get fetches the admin record for user_id, wrapping domain.ErrNotFound when
// absent.
func (r *MongoAdminRepository) Get(ctx context.Context, userID int64) (domain.Administrator, error) {
	if r == nil || r.collection == nil {
		return domain.Administrator{}, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return domain.Administrator{}, errors.New("context is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return domain.Administrator{}, errors.New("find admin returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Administrator{}, fmt.Errorf("admin %d: %w", userID, domain.ErrNotFound)
		}
		return domain.Administrator{}, fmt.Errorf("find admin: %w", err)
	}

	var admin domain.Administrator
	if err := result.Decode(&admin); err != nil {
		return domain.Administrator{}, fmt.Errorf("decode admin: %w", err)
	}

	return admin, nil
}

// List returns every administrator ordered by added_at then user_id.
func (r *MongoAdminRepository) List(ctx context.Context) ([]domain.Administrator, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}, {Key: "user_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find admins: %w", err)
	}

	admins := make([]domain.Administrator, 0)
	if err := cursor.All(ctx, &admins); err != nil {
		return nil, fmt.Errorf("decode admins: %w", err)
	}

	return admins, nil
}

// Delete removes the admin record for user_id and reports whether one existed.
func (r *MongoAdminRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	if r == nil || r.collection == nil {
		return false, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return false, fmt.Errorf("delete admin: %w", err)
	}

	return result != nil && result.DeletedCount > 0, nil
}

// Count returns the number of administrators.
func (r *MongoAdminRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("admin repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}

	return count, nil
}
