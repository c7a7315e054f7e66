package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/montanaflynn/stats"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jakubczubak/iFlip/internal/types"
)

// MongoStore keeps the price-history log in a MongoDB collection. Same
// contract as the JSONL file, for setups where several machines share one
// history.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to MongoDB and pings it before returning.
func NewMongoStore(uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "history_mongo"),
	}, nil
}

func (s *MongoStore) Append(ctx context.Context, offers []*types.Offer) error {
	records := recordsFromOffers(offers)
	if len(records) == 0 {
		return nil
	}

	docs := make([]any, len(records))
	for i, rec := range records {
		docs[i] = rec
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}
	s.logger.Debug("history appended", "records", len(records))
	return nil
}

func (s *MongoStore) Median(ctx context.Context, model, storage string, protection bool, within time.Duration) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-within).Format(dateLayout)
	filter := bson.M{
		"model":                  model,
		"storage_capacity":       storage,
		"has_protection_package": protection,
		"date":                   bson.M{"$gte": cutoff},
		"price":                  bson.M{"$gt": 0},
	}

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return 0, false, fmt.Errorf("mongodb find: %w", err)
	}
	defer cursor.Close(ctx)

	var prices []float64
	for cursor.Next(ctx) {
		var rec Record
		if err := cursor.Decode(&rec); err != nil {
			continue
		}
		prices = append(prices, rec.Price)
	}
	if err := cursor.Err(); err != nil {
		return 0, false, fmt.Errorf("mongodb cursor: %w", err)
	}

	if len(prices) == 0 {
		return 0, false, nil
	}
	median, err := stats.Median(prices)
	if err != nil {
		return 0, false, err
	}
	return median, true, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
