package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

const defaultCheckpointsCollection = "checkpoints"

// MongoStore persists checkpoints as documents in a MongoDB collection,
// one document per workflow id, for deployments that already run a
// document store alongside the kernel.
type MongoStore struct {
	collection *mongo.Collection
}

type checkpointDocument struct {
	WorkflowID string   `bson:"_id"`
	Envelope   Envelope `bson:"envelope"`
}

// NewMongoStore returns a MongoStore backed by collection in database.
// Documents are keyed by workflow id in _id; no index is created.
func NewMongoStore(ctx context.Context, client *mongo.Client, database, collection string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	if database == "" {
		return nil, errors.New("database name is required")
	}
	if collection == "" {
		collection = defaultCheckpointsCollection
	}
	coll := client.Database(database).Collection(collection)
	return &MongoStore{collection: coll}, nil
}

func (m *MongoStore) Save(ctx context.Context, id string, env Envelope) error {
	doc := checkpointDocument{WorkflowID: id, Envelope: env}
	opts := options.Replace().SetUpsert(true)
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	if err != nil {
		return fmt.Errorf("mongodb save checkpoint %q: %w", id, err)
	}
	return nil
}

func (m *MongoStore) Load(ctx context.Context, id string) (Envelope, error) {
	var doc checkpointDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Envelope{}, kernelerr.New(kernelerr.NotFound, "no checkpoint for workflow %q", id)
		}
		return Envelope{}, fmt.Errorf("mongodb load checkpoint %q: %w", id, err)
	}
	return doc.Envelope, nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb delete checkpoint %q: %w", id, err)
	}
	return nil
}

func (m *MongoStore) List(ctx context.Context) ([]string, error) {
	cursor, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongodb list checkpoints: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []checkpointDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb list checkpoints decode: %w", err)
	}
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = doc.WorkflowID
	}
	return out, nil
}
