package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ponraviraj/gemini-chat/internal/models"
)

// MongoTraceStore logs every hosted-model invocation to a MongoDB
// collection for offline inspection.
type MongoTraceStore struct {
	col *mongo.Collection
}

func NewMongoTraceStore(db *mongo.Database) *MongoTraceStore {
	return &MongoTraceStore{col: db.Collection("traces")}
}

func (s *MongoTraceStore) Record(ctx context.Context, rec models.TraceRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := s.col.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongo insert trace: %w", err)
	}
	return nil
}

// RecentByUser returns the newest traces first, capped at limit.
func (s *MongoTraceStore) RecentByUser(ctx context.Context, username string, limit int) ([]models.TraceRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.col.Find(ctx, bson.M{"username": username}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find traces: %w", err)
	}
	defer cur.Close(ctx)

	var recs []models.TraceRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("mongo decode traces: %w", err)
	}
	return recs, nil
}
