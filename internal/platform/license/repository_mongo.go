package license

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
	collectionProducts = "license_products"
	collectionTokens   = "license_tokens"
	collectionSlots    = "license_slots"
)

// MongoRepository implements Repository against MongoDB. Token
// consumption and slot acquisition run inside multi-document transactions
// to realize the spec's row-level-lock semantics (SPEC_FULL.md §5).
type MongoRepository struct {
	client *commonmongo.Client
}

// NewMongoRepository creates a new license repository.
func NewMongoRepository(client *commonmongo.Client) *MongoRepository {
	return &MongoRepository{client: client}
}

func (r *MongoRepository) products() *gomongo.Collection {
	return r.client.Collection(collectionProducts)
}
func (r *MongoRepository) tokens() *gomongo.Collection { return r.client.Collection(collectionTokens) }
func (r *MongoRepository) slots() *gomongo.Collection  { return r.client.Collection(collectionSlots) }

func (r *MongoRepository) FindProductByID(ctx context.Context, id string) (*Product, error) {
	return repository.Instrument(ctx, collectionProducts, "find_by_id", func() (*Product, error) {
		var p Product
		err := r.products().FindOne(ctx, bson.M{"_id": id}).Decode(&p)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrProductNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find product by id: %w", err)
		}
		return &p, nil
	})
}

func (r *MongoRepository) FindProductByCode(ctx context.Context, code string) (*Product, error) {
	return repository.Instrument(ctx, collectionProducts, "find_by_code", func() (*Product, error) {
		var p Product
		err := r.products().FindOne(ctx, bson.M{"code": code}).Decode(&p)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrProductNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find product by code: %w", err)
		}
		return &p, nil
	})
}

func (r *MongoRepository) InsertProduct(ctx context.Context, product *Product) error {
	return repository.InstrumentVoid(ctx, collectionProducts, "insert", func() error {
		if product.ID == "" {
			product.ID = tsid.Generate()
		}
		now := time.Now()
		product.CreatedAt, product.UpdatedAt = now, now
		_, err := r.products().InsertOne(ctx, product)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) InsertToken(ctx context.Context, token *Token) error {
	return repository.InstrumentVoid(ctx, collectionTokens, "insert", func() error {
		if token.ID == "" {
			token.ID = tsid.Generate()
		}
		token.CreatedAt = time.Now()
		_, err := r.tokens().InsertOne(ctx, token)
		if err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		return nil
	})
}

type tokenConsumeResult struct {
	token   *Token
	product *Product
}

func (r *MongoRepository) ValidateAndConsumeToken(ctx context.Context, tokenHash, clientIP string) (*Token, *Product, error) {
	result, err := repository.Instrument(ctx, collectionTokens, "validate_and_consume", func() (tokenConsumeResult, error) {
		var token Token
		var product Product

		err := r.client.WithTransaction(ctx, func(sessCtx gomongo.SessionContext) error {
			if err := r.tokens().FindOne(sessCtx, bson.M{"tokenHash": tokenHash}).Decode(&token); err != nil {
				if err == gomongo.ErrNoDocuments {
					return ErrTokenNotFound
				}
				return fmt.Errorf("find token: %w", err)
			}
			if token.Used {
				return ErrTokenUsed
			}
			if time.Now().After(token.ExpiresAt) {
				return ErrTokenExpired
			}

			if err := r.products().FindOne(sessCtx, bson.M{"_id": token.ProductID}).Decode(&product); err != nil {
				if err == gomongo.ErrNoDocuments {
					return ErrProductNotFound
				}
				return fmt.Errorf("find product: %w", err)
			}
			if !product.Active {
				return ErrProductInactive
			}

			now := time.Now()
			res := r.tokens().FindOneAndUpdate(sessCtx,
				bson.M{"_id": token.ID, "used": false},
				bson.M{"$set": bson.M{"used": true, "usedAt": now, "usedByIp": clientIP}},
				options.FindOneAndUpdate().SetReturnDocument(options.After))
			if err := res.Decode(&token); err != nil {
				if err == gomongo.ErrNoDocuments {
					// consumed by a concurrent request between find and update
					return ErrTokenUsed
				}
				return fmt.Errorf("consume token: %w", err)
			}
			return nil
		})
		if err != nil {
			return tokenConsumeResult{}, err
		}
		return tokenConsumeResult{token: &token, product: &product}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result.token, result.product, nil
}

func (r *MongoRepository) FindUsedToken(ctx context.Context, tokenHash string) (*Token, *Product, error) {
	type usedTokenResult struct {
		token   *Token
		product *Product
	}
	result, err := repository.Instrument(ctx, collectionTokens, "find_used", func() (usedTokenResult, error) {
		var token Token
		if err := r.tokens().FindOne(ctx, bson.M{"tokenHash": tokenHash, "used": true}).Decode(&token); err != nil {
			if err == gomongo.ErrNoDocuments {
				return usedTokenResult{}, ErrTokenNotFound
			}
			return usedTokenResult{}, fmt.Errorf("find used token: %w", err)
		}
		var product Product
		if err := r.products().FindOne(ctx, bson.M{"_id": token.ProductID}).Decode(&product); err != nil {
			if err == gomongo.ErrNoDocuments {
				return usedTokenResult{}, ErrProductNotFound
			}
			return usedTokenResult{}, fmt.Errorf("find product: %w", err)
		}
		return usedTokenResult{token: &token, product: &product}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result.token, result.product, nil
}

func (r *MongoRepository) AcquireSlot(ctx context.Context, productID, hostname, ip string) (*AcquireOutcome, error) {
	return repository.Instrument(ctx, collectionSlots, "acquire", func() (*AcquireOutcome, error) {
		var outcome *AcquireOutcome

		err := r.client.WithTransaction(ctx, func(sessCtx gomongo.SessionContext) error {
			// Bumping lockVersion writes to the product document inside the
			// transaction, so concurrent acquires for the same product
			// conflict and one of them retries instead of both counting the
			// same free slot.
			var product Product
			if err := r.products().FindOneAndUpdate(sessCtx, bson.M{"_id": productID}, bson.M{"$inc": bson.M{"lockVersion": 1}}).Decode(&product); err != nil {
				if err == gomongo.ErrNoDocuments {
					return ErrProductNotFound
				}
				return fmt.Errorf("find product: %w", err)
			}

			now := time.Now()
			slotTTL := product.SlotTTL
			if slotTTL <= 0 {
				slotTTL = time.Hour
			}

			if _, err := r.slots().UpdateMany(sessCtx,
				bson.M{
					"productId":  productID,
					"status":     SlotStatusActive,
					"acquiredAt": bson.M{"$lt": now.Add(-slotTTL)},
				},
				bson.M{"$set": bson.M{"status": SlotStatusExpired}},
			); err != nil {
				return fmt.Errorf("reap expired slots: %w", err)
			}

			activeCount, err := r.slots().CountDocuments(sessCtx, bson.M{"productId": productID, "status": SlotStatusActive})
			if err != nil {
				return fmt.Errorf("count active slots: %w", err)
			}

			maxConcurrent := int64(product.MaxConcurrent)
			if activeCount >= maxConcurrent {
				outcome = &AcquireOutcome{Granted: false, RetryAfter: DefaultRetryAfter}
				return nil
			}

			slot := &Slot{
				ID:         tsid.Generate(),
				ProductID:  productID,
				Hostname:   hostname,
				IP:         ip,
				Status:     SlotStatusActive,
				AcquiredAt: now,
			}
			if _, err := r.slots().InsertOne(sessCtx, slot); err != nil {
				return fmt.Errorf("insert slot: %w", err)
			}
			outcome = &AcquireOutcome{Granted: true, Slot: slot}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return outcome, nil
	})
}

func (r *MongoRepository) ReleaseSlot(ctx context.Context, slotID, result string, elapsed time.Duration) error {
	return repository.InstrumentVoid(ctx, collectionSlots, "release", func() error {
		now := time.Now()
		res, err := r.slots().UpdateOne(ctx,
			bson.M{"_id": slotID, "status": SlotStatusActive},
			bson.M{"$set": bson.M{
				"status":        SlotStatusReleased,
				"releasedAt":    now,
				"result":        result,
				"elapsedMillis": elapsed.Milliseconds(),
			}})
		if err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrSlotNotFound
		}
		return nil
	})
}

// CreateSchema creates indexes on the license collections.
func (r *MongoRepository) CreateSchema(ctx context.Context) error {
	if _, err := r.tokens().Indexes().CreateMany(ctx, []gomongo.IndexModel{
		{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Options: options.Index().SetName("idx_token_hash").SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("create token indexes: %w", err)
	}
	if _, err := r.slots().Indexes().CreateMany(ctx, []gomongo.IndexModel{
		{Keys: bson.D{{Key: "productId", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("idx_product_status")},
	}); err != nil {
		return fmt.Errorf("create slot indexes: %w", err)
	}
	return nil
}
