package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// APIKeysCollection holds one document per issued key.
const APIKeysCollection = "apiKeys"

// ErrKeyNotFound is returned when revoking a key that was never issued
var ErrKeyNotFound = errors.New("api key not found")

// APIKey is a document of the apiKeys collection
type APIKey struct {
	Key       string    `bson:"key" json:"key"`
	Label     string    `bson:"label" json:"label"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// ConnectMongo opens a MongoDB client and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	log.Info().Msg("✅ MongoDB connected")
	return client, nil
}

// APIKeys looks up and manages client API keys in MongoDB
type APIKeys struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewAPIKeys creates a new APIKeys store
func NewAPIKeys(coll *mongo.Collection) *APIKeys {
	return &APIKeys{coll: coll, now: time.Now}
}

// EnsureIndexes creates the unique index on key.
func (k *APIKeys) EnsureIndexes(ctx context.Context) error {
	_, err := k.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create apiKeys index: %w", err)
	}
	return nil
}

// Exists reports whether key has been issued.
func (k *APIKeys) Exists(ctx context.Context, key string) (bool, error) {
	err := k.coll.FindOne(ctx, bson.D{{Key: "key", Value: key}},
		options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}}),
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find api key: %w", err)
	}
	return true, nil
}

// Create issues a new random key.
func (k *APIKeys) Create(ctx context.Context, label string) (*APIKey, error) {
	doc := &APIKey{
		Key:       uuid.NewString(),
		Label:     label,
		CreatedAt: k.now().UTC(),
	}
	if _, err := k.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	return doc, nil
}

// Revoke deletes key.
func (k *APIKeys) Revoke(ctx context.Context, key string) error {
	res, err := k.coll.DeleteOne(ctx, bson.D{{Key: "key", Value: key}})
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrKeyNotFound
	}
	return nil
}
