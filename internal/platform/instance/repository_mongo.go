package instance

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

const collectionInstances = "instances"

// MongoRepository implements Repository against MongoDB.
type MongoRepository struct {
	client *commonmongo.Client
}

// NewMongoRepository creates a new instance repository.
func NewMongoRepository(client *commonmongo.Client) *MongoRepository {
	return &MongoRepository{client: client}
}

func (r *MongoRepository) collection() *gomongo.Collection {
	return r.client.Collection(collectionInstances)
}

func (r *MongoRepository) FindPollable(ctx context.Context) ([]*Instance, error) {
	return repository.Instrument(ctx, collectionInstances, "find_pollable", func() ([]*Instance, error) {
		filter := bson.M{
			"deleted":            false,
			"providerInstanceId": bson.M{"$exists": true, "$ne": ""},
			"status":             bson.M{"$ne": StatusDeleted},
		}
		cursor, err := r.collection().Find(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("find pollable instances: %w", err)
		}
		var instances []*Instance
		if err := cursor.All(ctx, &instances); err != nil {
			return nil, fmt.Errorf("decode pollable instances: %w", err)
		}
		return instances, nil
	})
}

func (r *MongoRepository) UpdateStatus(ctx context.Context, id string, status Status, primaryIPv4 string) error {
	return repository.InstrumentVoid(ctx, collectionInstances, "update_status", func() error {
		set := bson.M{
			"status":        status,
			"lastSyncedAt":  time.Now(),
			"lastSyncError": "",
			"updatedAt":     time.Now(),
		}
		if primaryIPv4 != "" {
			set["primaryIpv4"] = primaryIPv4
		}
		if status == StatusDeleted {
			set["deleted"] = true
		}
		res, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("update instance status: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *MongoRepository) RecordSyncError(ctx context.Context, id, errMsg string) error {
	return repository.InstrumentVoid(ctx, collectionInstances, "record_sync_error", func() error {
		res, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
			"lastSyncError": errMsg,
			"lastSyncedAt":  time.Now(),
		}})
		if err != nil {
			return fmt.Errorf("record instance sync error: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *MongoRepository) Insert(ctx context.Context, inst *Instance) error {
	return repository.InstrumentVoid(ctx, collectionInstances, "insert", func() error {
		if inst.ID == "" {
			inst.ID = tsid.Generate()
		}
		now := time.Now()
		inst.CreatedAt, inst.UpdatedAt = now, now
		_, err := r.collection().InsertOne(ctx, inst)
		if err != nil {
			return fmt.Errorf("insert instance: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*Instance, error) {
	return repository.Instrument(ctx, collectionInstances, "find_by_id", func() (*Instance, error) {
		var inst Instance
		err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&inst)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find instance by id: %w", err)
		}
		return &inst, nil
	})
}

func (r *MongoRepository) ConsumeConfigToken(ctx context.Context, tokenHash string) (*Instance, error) {
	return repository.Instrument(ctx, collectionInstances, "consume_config_token", func() (*Instance, error) {
		var inst Instance
		err := r.client.WithTransaction(ctx, func(sessCtx gomongo.SessionContext) error {
			err := r.collection().FindOne(sessCtx, bson.M{"configTokenHash": tokenHash}).Decode(&inst)
			if err == gomongo.ErrNoDocuments {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("find instance by config token: %w", err)
			}
			if inst.ConfigTokenExpires == nil || inst.ConfigTokenExpires.Before(time.Now()) {
				return ErrConfigTokenExpired
			}
			if inst.VPNConfig == "" {
				return ErrNoVPNConfig
			}
			res, err := r.collection().UpdateOne(sessCtx, bson.M{"_id": inst.ID}, bson.M{
				"$set":   bson.M{"updatedAt": time.Now()},
				"$unset": bson.M{"configTokenHash": "", "configTokenExpires": ""},
			})
			if err != nil {
				return fmt.Errorf("clear instance config token: %w", err)
			}
			if res.MatchedCount == 0 {
				return ErrNotFound
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &inst, nil
	})
}

// CreateSchema creates indexes on the instances collection.
func (r *MongoRepository) CreateSchema(ctx context.Context) error {
	_, err := r.collection().Indexes().CreateMany(ctx, []gomongo.IndexModel{
		{
			Keys:    bson.D{{Key: "deleted", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_pollable"),
		},
		{
			Keys:    bson.D{{Key: "configTokenHash", Value: 1}},
			Options: options.Index().SetName("idx_config_token_hash").SetSparse(true).SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create instance indexes: %w", err)
	}
	return nil
}
