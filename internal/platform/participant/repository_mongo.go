package participant

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
	collectionUsers          = "users"
	collectionEvents         = "events"
	collectionParticipations = "event_participations"
)

// MongoRepository implements Repository against MongoDB.
type MongoRepository struct {
	client *commonmongo.Client
}

// NewMongoRepository creates a new participant repository.
func NewMongoRepository(client *commonmongo.Client) *MongoRepository {
	return &MongoRepository{client: client}
}

func (r *MongoRepository) users() *gomongo.Collection          { return r.client.Collection(collectionUsers) }
func (r *MongoRepository) events() *gomongo.Collection         { return r.client.Collection(collectionEvents) }
func (r *MongoRepository) participations() *gomongo.Collection { return r.client.Collection(collectionParticipations) }

func (r *MongoRepository) FindUserByID(ctx context.Context, id string) (*User, error) {
	return repository.Instrument(ctx, collectionUsers, "find_by_id", func() (*User, error) {
		var u User
		err := r.users().FindOne(ctx, bson.M{"_id": id}).Decode(&u)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find user by id: %w", err)
		}
		return &u, nil
	})
}

func (r *MongoRepository) FindUserByEmailKey(ctx context.Context, emailKey string) (*User, error) {
	return repository.Instrument(ctx, collectionUsers, "find_by_email_key", func() (*User, error) {
		var u User
		err := r.users().FindOne(ctx, bson.M{"emailKey": emailKey}).Decode(&u)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find user by email key: %w", err)
		}
		return &u, nil
	})
}

func (r *MongoRepository) FindActiveUsersByRole(ctx context.Context, roles []Role) ([]*User, error) {
	return repository.Instrument(ctx, collectionUsers, "find_active_by_role", func() ([]*User, error) {
		cursor, err := r.users().Find(ctx, bson.M{
			"role":        bson.M{"$in": roles},
			"deactivated": false,
		})
		if err != nil {
			return nil, fmt.Errorf("find active users by role: %w", err)
		}
		defer cursor.Close(ctx)

		var users []*User
		if err := cursor.All(ctx, &users); err != nil {
			return nil, fmt.Errorf("decode users: %w", err)
		}
		return users, nil
	})
}

func (r *MongoRepository) InsertUser(ctx context.Context, user *User) error {
	return repository.InstrumentVoid(ctx, collectionUsers, "insert", func() error {
		if user.ID == "" {
			user.ID = tsid.Generate()
		}
		now := time.Now()
		user.CreatedAt = now
		user.UpdatedAt = now
		if user.EmailStatus == "" {
			user.EmailStatus = EmailStatusOK
		}
		_, err := r.users().InsertOne(ctx, user)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) UpdateUser(ctx context.Context, user *User) error {
	return repository.InstrumentVoid(ctx, collectionUsers, "update", func() error {
		user.UpdatedAt = time.Now()
		_, err := r.users().ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) FindEventByID(ctx context.Context, id string) (*Event, error) {
	return repository.Instrument(ctx, collectionEvents, "find_by_id", func() (*Event, error) {
		var e Event
		err := r.events().FindOne(ctx, bson.M{"_id": id}).Decode(&e)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find event by id: %w", err)
		}
		return &e, nil
	})
}

func (r *MongoRepository) FindActiveEvent(ctx context.Context) (*Event, error) {
	return repository.Instrument(ctx, collectionEvents, "find_active", func() (*Event, error) {
		var e Event
		err := r.events().FindOne(ctx, bson.M{"active": true}).Decode(&e)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find active event: %w", err)
		}
		return &e, nil
	})
}

// ActivateEvent transitions active=true to eventID and false everywhere
// else inside one transaction, matching spec.md §3's "at most one active"
// invariant realized via explicit transition rather than a DB constraint.
func (r *MongoRepository) ActivateEvent(ctx context.Context, eventID string) error {
	return repository.InstrumentVoid(ctx, collectionEvents, "activate", func() error {
		return r.client.WithTransaction(ctx, func(sessCtx gomongo.SessionContext) error {
			coll := r.events()
			if _, err := coll.UpdateMany(sessCtx, bson.M{"active": true}, bson.M{"$set": bson.M{"active": false, "updatedAt": time.Now()}}); err != nil {
				return fmt.Errorf("deactivate current events: %w", err)
			}
			res, err := coll.UpdateOne(sessCtx, bson.M{"_id": eventID}, bson.M{"$set": bson.M{"active": true, "updatedAt": time.Now()}})
			if err != nil {
				return fmt.Errorf("activate event: %w", err)
			}
			if res.MatchedCount == 0 {
				return ErrNotFound
			}
			return nil
		})
	})
}

func (r *MongoRepository) InsertEvent(ctx context.Context, event *Event) error {
	return repository.InstrumentVoid(ctx, collectionEvents, "insert", func() error {
		if event.ID == "" {
			event.ID = tsid.Generate()
		}
		now := time.Now()
		event.CreatedAt = now
		event.UpdatedAt = now
		_, err := r.events().InsertOne(ctx, event)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) UpdateEvent(ctx context.Context, event *Event) error {
	return repository.InstrumentVoid(ctx, collectionEvents, "update", func() error {
		event.UpdatedAt = time.Now()
		_, err := r.events().ReplaceOne(ctx, bson.M{"_id": event.ID}, event)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) FindParticipation(ctx context.Context, userID, eventID string) (*EventParticipation, error) {
	return repository.Instrument(ctx, collectionParticipations, "find", func() (*EventParticipation, error) {
		var p EventParticipation
		err := r.participations().FindOne(ctx, bson.M{"userId": userID, "eventId": eventID}).Decode(&p)
		if err == gomongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find participation: %w", err)
		}
		return &p, nil
	})
}

func (r *MongoRepository) FindCandidatesWithoutParticipation(ctx context.Context, eventID string, roles []Role) ([]*User, error) {
	return repository.Instrument(ctx, collectionUsers, "find_candidates", func() ([]*User, error) {
		cursor, err := r.participations().Distinct(ctx, "userId", bson.M{"eventId": eventID})
		if err != nil {
			return nil, fmt.Errorf("list participating user ids: %w", err)
		}

		filter := bson.M{
			"role":               bson.M{"$in": roles},
			"deactivated":        false,
			"confirmationSentAt": bson.M{"$eq": nil},
		}
		if len(cursor) > 0 {
			filter["_id"] = bson.M{"$nin": cursor}
		}

		docs, err := r.users().Find(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("find candidates: %w", err)
		}
		defer docs.Close(ctx)

		var users []*User
		if err := docs.All(ctx, &users); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
		return users, nil
	})
}

func (r *MongoRepository) FindParticipationsForEvent(ctx context.Context, eventID string) ([]*EventParticipation, error) {
	return repository.Instrument(ctx, collectionParticipations, "find_for_event", func() ([]*EventParticipation, error) {
		cursor, err := r.participations().Find(ctx, bson.M{"eventId": eventID})
		if err != nil {
			return nil, fmt.Errorf("find participations for event: %w", err)
		}
		defer cursor.Close(ctx)

		var rows []*EventParticipation
		if err := cursor.All(ctx, &rows); err != nil {
			return nil, fmt.Errorf("decode participations: %w", err)
		}
		return rows, nil
	})
}

func (r *MongoRepository) UpsertParticipation(ctx context.Context, p *EventParticipation) error {
	return repository.InstrumentVoid(ctx, collectionParticipations, "upsert", func() error {
		now := time.Now()
		if p.ID == "" {
			p.ID = tsid.Generate()
		}
		p.UpdatedAt = now

		opts := options.Replace().SetUpsert(true)
		_, err := r.participations().ReplaceOne(ctx, bson.M{"userId": p.UserID, "eventId": p.EventID}, p, opts)
		if err != nil {
			return fmt.Errorf("upsert participation: %w", err)
		}
		return nil
	})
}

func (r *MongoRepository) MarkReminderSent(ctx context.Context, participationID string, stage int) error {
	return repository.InstrumentVoid(ctx, collectionParticipations, "mark_reminder_sent", func() error {
		field := fmt.Sprintf("reminder%dSentAt", stage)
		_, err := r.participations().UpdateOne(ctx, bson.M{"_id": participationID}, bson.M{"$set": bson.M{field: time.Now(), "updatedAt": time.Now()}})
		if err != nil {
			return fmt.Errorf("mark reminder %d sent: %w", stage, err)
		}
		return nil
	})
}

func (r *MongoRepository) CreateSchema(ctx context.Context) error {
	if _, err := r.users().Indexes().CreateOne(ctx, gomongo.IndexModel{
		Keys:    bson.D{{Key: "emailKey", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_email_key_unique"),
	}); err != nil {
		return fmt.Errorf("create user index: %w", err)
	}

	if _, err := r.events().Indexes().CreateOne(ctx, gomongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_slug_unique"),
	}); err != nil {
		return fmt.Errorf("create event index: %w", err)
	}

	if _, err := r.participations().Indexes().CreateOne(ctx, gomongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "eventId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_user_event_unique"),
	}); err != nil {
		return fmt.Errorf("create participation index: %w", err)
	}

	return nil
}
