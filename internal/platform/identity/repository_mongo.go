package identity

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	gomongo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	commonmongo "go.redcell.dev/rangeops/internal/common/mongo"
	"go.redcell.dev/rangeops/internal/common/repository"
	"go.redcell.dev/rangeops/internal/common/tsid"
)

const collectionRows = "identity_sync_rows"

// MongoRepository implements Repository against MongoDB.
type MongoRepository struct {
	client *commonmongo.Client
}

// NewMongoRepository creates a new identity sync repository.
func NewMongoRepository(client *commonmongo.Client) *MongoRepository {
	return &MongoRepository{client: client}
}

func (r *MongoRepository) collection() *gomongo.Collection {
	return r.client.Collection(collectionRows)
}

func (r *MongoRepository) Queue(ctx context.Context, userID, username string, encryptedPassword *string, operation Operation) error {
	return repository.InstrumentVoid(ctx, collectionRows, "queue", func() error {
		now := time.Now()
		update := bson.M{
			"$set": bson.M{
				"userId":            userID,
				"username":          username,
				"encryptedPassword": encryptedPassword,
				"operation":         operation,
				"synced":            false,
				"syncedAt":          nil,
				"failed":            false,
				"retryCount":        0,
				"lastError":         "",
				"updatedAt":         now,
			},
			"$setOnInsert": bson.M{
				"_id":       tsid.Generate(),
				"createdAt": now,
			},
		}
		_, err := r.collection().UpdateOne(ctx,
			bson.M{"userId": userID, "operation": operation},
			update,
			options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("queue identity sync row: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) FindUnsynced(ctx context.Context, limit int) ([]*Row, error) {
	return repository.Instrument(ctx, collectionRows, "find_unsynced", func() ([]*Row, error) {
		cursor, err := r.collection().Find(ctx,
			bson.M{"synced": false, "failed": false},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit)))
		if err != nil {
			return nil, fmt.Errorf("find unsynced: %w", err)
		}
		var rows []*Row
		if err := cursor.All(ctx, &rows); err != nil {
			return nil, fmt.Errorf("decode unsynced: %w", err)
		}
		return rows, nil
	})
}

func (r *MongoRepository) MarkSynced(ctx context.Context, id string) error {
	return repository.InstrumentVoid(ctx, collectionRows, "mark_synced", func() error {
		now := time.Now()
		res, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
			"synced": true, "syncedAt": now, "lastError": "",
		}})
		if err != nil {
			return fmt.Errorf("mark synced: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *MongoRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	return repository.InstrumentVoid(ctx, collectionRows, "mark_failed", func() error {
		res, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
			"failed": true, "lastError": errMsg,
		}})
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *MongoRepository) MarkRetry(ctx context.Context, id, errMsg string) error {
	return repository.InstrumentVoid(ctx, collectionRows, "mark_retry", func() error {
		res, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{
			"$set": bson.M{"lastError": errMsg},
			"$inc": bson.M{"retryCount": 1},
		})
		if err != nil {
			return fmt.Errorf("mark retry: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateSchema creates indexes on the identity sync collection.
func (r *MongoRepository) CreateSchema(ctx context.Context) error {
	_, err := r.collection().Indexes().CreateMany(ctx, []gomongo.IndexModel{
		{
			Keys:    bson.D{{Key: "synced", Value: 1}, {Key: "failed", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_unsynced"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "operation", Value: 1}},
			Options: options.Index().SetName("idx_user_operation").SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create identity sync indexes: %w", err)
	}
	return nil
}
