package emailqueue

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

const (
	collectionRows      = "email_queue_rows"
	collectionBatchLogs = "email_batch_logs"
)

// dedupeWindow is the lookback for step 2 of the Enqueue dedupe contract.
const dedupeWindow = 24 * time.Hour

// MongoRepository implements Repository against MongoDB. Enqueue and
// ClaimDue run inside multi-document transactions to realize the spec's
// row-level-lock semantics without a relational engine (SPEC_FULL.md §5).
type MongoRepository struct {
	client *commonmongo.Client
}

// NewMongoRepository creates a new email queue repository.
func NewMongoRepository(client *commonmongo.Client) *MongoRepository {
	return &MongoRepository{client: client}
}

func (r *MongoRepository) collection() *gomongo.Collection {
	return r.client.Collection(collectionRows)
}

func (r *MongoRepository) Enqueue(ctx context.Context, req *EnqueueRequest) (*Row, error) {
	return repository.Instrument(ctx, collectionRows, "enqueue", func() (*Row, error) {
		var result *Row

		err := r.client.WithTransaction(ctx, func(sessCtx gomongo.SessionContext) error {
			coll := r.collection()

			var pending Row
			err := coll.FindOne(sessCtx, bson.M{
				"userId":       req.UserID,
				"templateName": req.TemplateName,
				"status":       StatusPending,
			}).Decode(&pending)
			if err == nil {
				result = &pending
				return nil
			}
			if err != gomongo.ErrNoDocuments {
				return fmt.Errorf("check pending dedupe: %w", err)
			}

			if !req.Force {
				var recent Row
				err := coll.FindOne(sessCtx, bson.M{
					"userId":       req.UserID,
					"templateName": req.TemplateName,
					"status":       bson.M{"$in": []Status{StatusSent, StatusProcessing}},
					"createdAt":    bson.M{"$gte": time.Now().Add(-dedupeWindow)},
				}).Decode(&recent)
				if err == nil {
					result = &recent
					return nil
				}
				if err != gomongo.ErrNoDocuments {
					return fmt.Errorf("check recent dedupe: %w", err)
				}
			}

			maxAttempts := req.MaxAttempts
			if maxAttempts <= 0 {
				maxAttempts = 5
			}

			row := &Row{
				ID:           tsid.Generate(),
				UserID:       req.UserID,
				Email:        req.Email,
				DisplayName:  req.DisplayName,
				TemplateName: req.TemplateName,
				Variables:    req.Variables,
				Priority:     req.Priority,
				Status:       StatusPending,
				MaxAttempts:  maxAttempts,
				ScheduledFor: req.ScheduledFor,
				CreatedAt:    time.Now(),
			}
			if _, err := coll.InsertOne(sessCtx, row); err != nil {
				return fmt.Errorf("insert row: %w", err)
			}
			result = row
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

func (r *MongoRepository) ClaimDue(ctx context.Context, limit int, now time.Time, batchID, workerID string) ([]*Row, error) {
	return repository.Instrument(ctx, collectionRows, "claim_due", func() ([]*Row, error) {
		var claimed []*Row

		err := r.client.WithTransaction(ctx, func(sessCtx gomongo.SessionContext) error {
			coll := r.collection()
			claimed = claimed[:0]

			filter := bson.M{
				"status": StatusPending,
				"$expr":  bson.M{"$lt": []string{"$attempts", "$maxAttempts"}},
				"$or": []bson.M{
					{"scheduledFor": bson.M{"$eq": nil}},
					{"scheduledFor": bson.M{"$lte": now}},
				},
			}
			cursor, err := coll.Find(sessCtx, filter, options.Find().
				SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "createdAt", Value: 1}}).
				SetLimit(int64(limit)))
			if err != nil {
				return fmt.Errorf("find due rows: %w", err)
			}
			var candidates []*Row
			if err := cursor.All(sessCtx, &candidates); err != nil {
				return fmt.Errorf("decode due rows: %w", err)
			}

			for _, row := range candidates {
				update := bson.M{
					"$set": bson.M{
						"status":        StatusProcessing,
						"lastAttemptAt": now,
						"batchId":       batchID,
						"workerId":      workerID,
					},
					"$inc": bson.M{"attempts": 1},
				}
				res := coll.FindOneAndUpdate(sessCtx,
					bson.M{"_id": row.ID, "status": StatusPending},
					update,
					options.FindOneAndUpdate().SetReturnDocument(options.After))

				var updated Row
				if err := res.Decode(&updated); err != nil {
					if err == gomongo.ErrNoDocuments {
						// claimed by a concurrent worker between find and update
						continue
					}
					return fmt.Errorf("claim row %s: %w", row.ID, err)
				}
				claimed = append(claimed, &updated)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return claimed, nil
	})
}

func (r *MongoRepository) MarkSent(ctx context.Context, rowID, providerMessageID string) error {
	return repository.InstrumentVoid(ctx, collectionRows, "mark_sent", func() error {
		now := time.Now()
		_, err := r.collection().UpdateOne(ctx, bson.M{"_id": rowID}, bson.M{"$set": bson.M{
			"status":            StatusSent,
			"sentAt":            now,
			"providerMessageId": providerMessageID,
		}})
		if err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) MarkFailed(ctx context.Context, rowID, errMsg string) error {
	return repository.InstrumentVoid(ctx, collectionRows, "mark_failed", func() error {
		var row Row
		if err := r.collection().FindOne(ctx, bson.M{"_id": rowID}).Decode(&row); err != nil {
			if err == gomongo.ErrNoDocuments {
				return ErrNotFound
			}
			return fmt.Errorf("load row for mark_failed: %w", err)
		}

		nextStatus := StatusPending
		if row.Attempts >= row.MaxAttempts {
			nextStatus = StatusFailed
		}

		_, err := r.collection().UpdateOne(ctx, bson.M{"_id": rowID}, bson.M{"$set": bson.M{
			"status":    nextStatus,
			"lastError": errMsg,
		}})
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) MarkCancelled(ctx context.Context, rowID string) error {
	return repository.InstrumentVoid(ctx, collectionRows, "mark_cancelled", func() error {
		_, err := r.collection().UpdateOne(ctx, bson.M{"_id": rowID}, bson.M{"$set": bson.M{"status": StatusCancelled}})
		if err != nil {
			return fmt.Errorf("mark cancelled: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) GetPendingFor(ctx context.Context, userID, templateName string) (*Row, error) {
	return repository.Instrument(ctx, collectionRows, "get_pending_for", func() (*Row, error) {
		var row Row
		err := r.collection().FindOne(ctx, bson.M{
			"userId": userID, "templateName": templateName, "status": StatusPending,
		}).Decode(&row)
		if err == gomongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get pending for: %w", err)
		}
		return &row, nil
	})
}

func (r *MongoRepository) GetRecentFor(ctx context.Context, userID, templateName string, since time.Time) (*Row, error) {
	return repository.Instrument(ctx, collectionRows, "get_recent_for", func() (*Row, error) {
		var row Row
		err := r.collection().FindOne(ctx, bson.M{
			"userId":       userID,
			"templateName": templateName,
			"status":       bson.M{"$in": []Status{StatusSent, StatusProcessing}},
			"createdAt":    bson.M{"$gte": since},
		}).Decode(&row)
		if err == gomongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get recent for: %w", err)
		}
		return &row, nil
	})
}

func (r *MongoRepository) Stats(ctx context.Context) (*Stats, error) {
	return repository.Instrument(ctx, collectionRows, "stats", func() (*Stats, error) {
		pipeline := bson.A{
			bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
		}
		cursor, err := r.collection().Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("stats aggregate: %w", err)
		}
		defer cursor.Close(ctx)

		var results []struct {
			ID    Status `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.All(ctx, &results); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}

		stats := &Stats{}
		for _, r := range results {
			switch r.ID {
			case StatusPending:
				stats.Pending = r.Count
			case StatusProcessing:
				stats.Processing = r.Count
			case StatusSent:
				stats.Sent = r.Count
			case StatusFailed:
				stats.Failed = r.Count
			case StatusCancelled:
				stats.Cancelled = r.Count
			}
		}
		return stats, nil
	})
}

func (r *MongoRepository) RecordBatchLog(ctx context.Context, log *BatchLog) error {
	return repository.InstrumentVoid(ctx, collectionBatchLogs, "insert", func() error {
		if log.ID == "" {
			log.ID = tsid.Generate()
		}
		_, err := r.client.Collection(collectionBatchLogs).InsertOne(ctx, log)
		if err != nil {
			return fmt.Errorf("record batch log: %w", err)
		}
		return nil
	})
}

// CreateSchema creates indexes on the email queue collections. MongoDB
// collections are created implicitly on first write.
func (r *MongoRepository) CreateSchema(ctx context.Context) error {
	_, err := r.collection().Indexes().CreateMany(ctx, []gomongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "priority", Value: 1},
				{Key: "createdAt", Value: 1},
			},
			Options: options.Index().SetName("idx_due"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "templateName", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_dedupe"),
		},
	})
	if err != nil {
		return fmt.Errorf("create email queue indexes: %w", err)
	}
	return nil
}
