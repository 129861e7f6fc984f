package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/bayonhq/coagent/workflow"
)

// MongoConfig configures the MongoDB-backed store.
type MongoConfig struct {
	URI        string `json:"uri" yaml:"uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

// runDocument is the Mongo shape of a run: query fields plus the JSON
// snapshot, mirroring the SQL record layout.
type runDocument struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Type      string    `bson:"type"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Snapshot  []byte    `bson:"snapshot"`
}

// MongoStore persists workflow runs in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB, verifies the connection and ensures the
// owner index exists.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "coagent"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "workflow_runs"
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create owner index: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, run *workflow.Run) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	doc := runDocument{
		ID:        run.ID,
		OwnerID:   run.OwnerID,
		Type:      run.Type,
		Status:    string(run.Status),
		CreatedAt: run.CreatedAt,
		UpdatedAt: time.Now().UTC(),
		Snapshot:  snapshot,
	}

	_, err = s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: run.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	return nil
}

// Load implements Store.
func (s *MongoStore) Load(ctx context.Context, runID string) (*workflow.Run, error) {
	var doc runDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: runID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	var run workflow.Run
	if err := json.Unmarshal(doc.Snapshot, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", runID, err)
	}
	return &run, nil
}

// ListByOwner implements Store. Runs are returned newest first.
func (s *MongoStore) ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "owner_id", Value: ownerID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list runs for owner %s: %w", ownerID, err)
	}
	defer cursor.Close(ctx)

	var out []*workflow.Run
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode run document: %w", err)
		}
		var run workflow.Run
		if err := json.Unmarshal(doc.Snapshot, &run); err != nil {
			return nil, fmt.Errorf("unmarshal run %s: %w", doc.ID, err)
		}
		out = append(out, &run)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs for owner %s: %w", ownerID, err)
	}
	return out, nil
}

// Close implements Store.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
