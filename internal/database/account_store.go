package database

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"studentauth/internal/auth"
	"studentauth/internal/models"
)

// DefaultQueryTimeout bounds every collection call.
const DefaultQueryTimeout = 5 * time.Second

// MongoAccountStore implements auth.AccountStore on a MongoDB collection.
type MongoAccountStore struct {
	coll    *mongo.Collection
	timeout time.Duration
	now     func() time.Time
}

// NewMongoAccountStore creates a MongoAccountStore. timeout <= 0 selects
// DefaultQueryTimeout.
func NewMongoAccountStore(coll *mongo.Collection, timeout time.Duration) *MongoAccountStore {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &MongoAccountStore{coll: coll, timeout: timeout, now: time.Now}
}

var _ auth.AccountStore = (*MongoAccountStore)(nil)

// Create inserts a new account.
func (s *MongoAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := account.Clone()
	now := storeTime(s.now())
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, auth.ErrDuplicateEmail
		}
		return nil, oops.With("operation", "insert").Wrap(err)
	}
	return doc, nil
}

// FindByEmail retrieves an account by email.
func (s *MongoAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByVerificationSecret retrieves an account by verification secret hash.
func (s *MongoAccountStore) FindByVerificationSecret(ctx context.Context, secretHash string) (*models.Account, error) {
	return s.findOne(ctx, bson.M{"verification.secret_hash": secretHash})
}

// FindByIdentity retrieves an account by its hex ObjectID.
func (s *MongoAccountStore) FindByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	id, err := primitive.ObjectIDFromHex(identity)
	if err != nil {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": id})
}

// Save replaces the stored document.
func (s *MongoAccountStore) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := account.Clone()
	doc.UpdatedAt = storeTime(s.now())

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, auth.ErrDuplicateEmail
		}
		return nil, oops.With("operation", "replace").With("account_id", doc.Identity()).Wrap(err)
	}
	if res.MatchedCount == 0 {
		return nil, auth.ErrNotFound
	}
	return doc, nil
}

// DeleteByIdentity removes an account and returns it.
func (s *MongoAccountStore) DeleteByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	id, err := primitive.ObjectIDFromHex(identity)
	if err != nil {
		return nil, auth.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var account models.Account
	if err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&account); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.With("operation", "delete").With("account_id", identity).Wrap(err)
	}
	return &account, nil
}

// List returns every account.
func (s *MongoAccountStore) List(ctx context.Context) ([]*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, oops.With("operation", "find").Wrap(err)
	}

	accounts := []*models.Account{}
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, oops.With("operation", "decode").Wrap(err)
	}
	return accounts, nil
}

func (s *MongoAccountStore) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var account models.Account
	if err := s.coll.FindOne(ctx, filter).Decode(&account); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.With("operation", "find one").Wrap(err)
	}
	return &account, nil
}

// storeTime matches the millisecond precision of BSON dates.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
