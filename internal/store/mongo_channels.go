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

const requiredChannelSequence = "required_channels"

type channelCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type counterCollection interface {
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

// MongoChannelRepository persists required channels in MongoDB. Sequential ids
// come from an atomic $inc on the counters collection.
type MongoChannelRepository struct {
	collection channelCollection
	counters   counterCollection
}

// NewMongoChannelRepository constructs a MongoChannelRepository.
func NewMongoChannelRepository(collection channelCollection, counters counterCollection) *MongoChannelRepository {
	return &MongoChannelRepository{
		collection: collection,
		counters:   counters,
	}
}

// InsertIfAbsent stores the channel under the next sequential id unless a
// channel with the same channel_id exists, in which case the stored record is
// returned with inserted=false.
func (r *MongoChannelRepository) InsertIfAbsent(ctx context.Context, channel domain.RequiredChannel) (domain.RequiredChannel, bool, error) {
	if r == nil || r.collection == nil || r.counters == nil {
		return domain.RequiredChannel{}, false, errors.New("channel repository is not initialized")
	}
	if ctx == nil {
		return domain.RequiredChannel{}, false, errors.New("context is required")
	}
	if channel.ChannelID == "" {
		return domain.RequiredChannel{}, false, errors.New("channel_id is required")
	}

	existing, found, err := r.findByChannelID(ctx, channel.ChannelID)
	if err != nil {
		return domain.RequiredChannel{}, false, err
	}
	if found {
		return existing, false, nil
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return domain.RequiredChannel{}, false, err
	}
	channel.ID = id

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"channel_id": channel.ChannelID},
		bson.M{"$setOnInsert": bson.M{
			"id":           channel.ID,
			"channel_id":   channel.ChannelID,
			"channel_name": channel.ChannelName,
			"channel_link": channel.ChannelLink,
			"added_by":     channel.AddedBy,
			"added_at":     channel.AddedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return domain.RequiredChannel{}, false, fmt.Errorf("insert required channel: %w", err)
	}
	if err == nil && result != nil && result.UpsertedCount > 0 {
		return channel, true, nil
	}

	// Another registration of the same channel_id won; report its record.
	existing, found, err = r.findByChannelID(ctx, channel.ChannelID)
	if err != nil {
		return domain.RequiredChannel{}, false, err
	}
	if !found {
		return domain.RequiredChannel{}, false, fmt.Errorf("required channel %s vanished after concurrent insert", channel.ChannelID)
	}

	return existing, false, nil
}

// List returns every required channel in registration order.
func (r *MongoChannelRepository) List(ctx context.Context) ([]domain.RequiredChannel, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("channel repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find required channels: %w", err)
	}

	channels := make([]domain.RequiredChannel, 0)
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, fmt.Errorf("decode required channels: %w", err)
	}

	return channels, nil
}

// Delete removes the channel with the given id and reports whether it existed.
func (r *MongoChannelRepository) Delete(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.collection == nil {
		return false, errors.New("channel repository is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete required channel: %w", err)
	}

	return result != nil && result.DeletedCount > 0, nil
}

// Count returns the number of required channels.
func (r *MongoChannelRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("channel repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count required channels: %w", err)
	}

	return count, nil
}

func (r *MongoChannelRepository) findByChannelID(ctx context.Context, channelID string) (domain.RequiredChannel, bool, error) {
	result := r.collection.FindOne(ctx, bson.M{"channel_id": channelID})
	if result == nil {
		return domain.RequiredChannel{}, false, errors.New("find required channel returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.RequiredChannel{}, false, nil
		}
		return domain.RequiredChannel{}, false, fmt.Errorf("find required channel: %w", err)
	}

	var channel domain.RequiredChannel
	if err := result.Decode(&channel); err != nil {
		return domain.RequiredChannel{}, false, fmt.Errorf("decode required channel: %w", err)
	}

	return channel, true, nil
}

func (r *MongoChannelRepository) nextID(ctx context.Context) (int64, error) {
	result := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": requiredChannelSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)
	if result == nil {
		return 0, errors.New("increment channel sequence returned no result")
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("increment channel sequence: %w", err)
	}

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	if err := result.Decode(&counter); err != nil {
		return 0, fmt.Errorf("decode channel sequence: %w", err)
	}

	return counter.Seq, nil
}
