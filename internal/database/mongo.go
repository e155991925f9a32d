package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoURI is used when no URI is configured.
const DefaultMongoURI = "mongodb://localhost:27017"

// AccountCollection is the collection holding student accounts.
const AccountCollection = "students"

// ConnectMongoDB establishes a connection to MongoDB and returns the client.
func ConnectMongoDB(ctx context.Context, uri string, logger *slog.Logger) (*mongo.Client, error) {
	if uri == "" {
		uri = DefaultMongoURI
	}
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, oops.With("operation", "connect").Wrap(err)
	}
	// Ping the database to verify connection.
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, oops.With("operation", "ping").Wrap(err)
	}
	logger.Info("connected to MongoDB")
	return client, nil
}

// GetAccountCollection returns the MongoDB collection for student accounts.
func GetAccountCollection(client *mongo.Client, dbName string) *mongo.Collection {
	if dbName == "" {
		dbName = "studentauth"
	}
	return client.Database(dbName).Collection(AccountCollection)
}

// EnsureIndexes creates the indexes the account store relies on: a unique
// index on email and a lookup index on the verification secret hash.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) ([]string, error) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "verification.secret_hash", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("verification_secret_hash"),
		},
	}

	names, err := coll.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return nil, oops.With("collection", coll.Name()).Wrap(err)
	}
	return names, nil
}
