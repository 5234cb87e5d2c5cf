package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	gomongo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	commonmongo "go.redcell.dev/rangeops/internal/common/mongo"
	"go.redcell.dev/rangeops/internal/common/repository"
)

const collectionSchedulerStatus = "scheduler_status"

// MongoStatusRepository implements StatusRepository against MongoDB.
type MongoStatusRepository struct {
	client *commonmongo.Client
}

// NewMongoStatusRepository creates a new heartbeat repository.
func NewMongoStatusRepository(client *commonmongo.Client) *MongoStatusRepository {
	return &MongoStatusRepository{client: client}
}

func (r *MongoStatusRepository) collection() *gomongo.Collection {
	return r.client.Collection(collectionSchedulerStatus)
}

func (r *MongoStatusRepository) UpsertHeartbeat(ctx context.Context, instanceID string, registeredJobs int) error {
	return repository.InstrumentVoid(ctx, collectionSchedulerStatus, "upsert_heartbeat", func() error {
		opts := options.Replace().SetUpsert(true)
		status := &SchedulerStatus{
			ID:            instanceID,
			InstanceID:    instanceID,
			RegisteredJob: registeredJobs,
			LastHeartbeat: time.Now(),
		}
		_, err := r.collection().ReplaceOne(ctx, bson.M{"_id": instanceID}, status, opts)
		if err != nil {
			return fmt.Errorf("upsert scheduler heartbeat: %w", err)
		}
		return nil
	})
}

func (r *MongoStatusRepository) CreateSchema(ctx context.Context) error {
	_, err := r.collection().Indexes().CreateOne(ctx, gomongo.IndexModel{
		Keys:    bson.D{{Key: "lastHeartbeat", Value: -1}},
		Options: options.Index().SetName("idx_last_heartbeat"),
	})
	if err != nil {
		return fmt.Errorf("create scheduler status index: %w", err)
	}
	return nil
}
