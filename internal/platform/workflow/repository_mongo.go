package workflow

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

const collectionWorkflows = "email_workflows"

// MongoRepository implements Repository against MongoDB.
type MongoRepository struct {
	client *commonmongo.Client
}

// NewMongoRepository creates a new workflow repository.
func NewMongoRepository(client *commonmongo.Client) *MongoRepository {
	return &MongoRepository{client: client}
}

func (r *MongoRepository) collection() *gomongo.Collection {
	return r.client.Collection(collectionWorkflows)
}

func (r *MongoRepository) FindEnabledByTrigger(ctx context.Context, triggerEvent string) ([]*EmailWorkflow, error) {
	return repository.Instrument(ctx, collectionWorkflows, "find_enabled_by_trigger", func() ([]*EmailWorkflow, error) {
		opts := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}})
		cursor, err := r.collection().Find(ctx, bson.M{
			"triggerEvent": triggerEvent,
			"enabled":      true,
		}, opts)
		if err != nil {
			return nil, fmt.Errorf("find enabled workflows: %w", err)
		}
		defer cursor.Close(ctx)

		var rows []*EmailWorkflow
		if err := cursor.All(ctx, &rows); err != nil {
			return nil, fmt.Errorf("decode workflows: %w", err)
		}
		return rows, nil
	})
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*EmailWorkflow, error) {
	return repository.Instrument(ctx, collectionWorkflows, "find_by_id", func() (*EmailWorkflow, error) {
		var wf EmailWorkflow
		err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&wf)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find workflow by id: %w", err)
		}
		return &wf, nil
	})
}

func (r *MongoRepository) Insert(ctx context.Context, wf *EmailWorkflow) error {
	return repository.InstrumentVoid(ctx, collectionWorkflows, "insert", func() error {
		if wf.ID == "" {
			wf.ID = tsid.Generate()
		}
		now := time.Now()
		wf.CreatedAt = now
		wf.UpdatedAt = now
		_, err := r.collection().InsertOne(ctx, wf)
		if err != nil {
			return fmt.Errorf("insert workflow: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) Update(ctx context.Context, wf *EmailWorkflow) error {
	return repository.InstrumentVoid(ctx, collectionWorkflows, "update", func() error {
		wf.UpdatedAt = time.Now()
		_, err := r.collection().ReplaceOne(ctx, bson.M{"_id": wf.ID}, wf)
		if err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) CreateSchema(ctx context.Context) error {
	_, err := r.collection().Indexes().CreateOne(ctx, gomongo.IndexModel{
		Keys:    bson.D{{Key: "triggerEvent", Value: 1}, {Key: "priority", Value: 1}},
		Options: options.Index().SetName("idx_trigger_priority"),
	})
	if err != nil {
		return fmt.Errorf("create workflow index: %w", err)
	}
	return nil
}
