package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/escrow-settlement/internal/domain/timeline"
)

const (
	// TimelineCollectionName is the name of the projected event collection in MongoDB
	TimelineCollectionName = "escrow_timeline"
)

// TimelineRepository implements the timeline.Repository interface for MongoDB
type TimelineRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewTimelineRepository creates a new MongoDB timeline repository
func NewTimelineRepository(logger *slog.Logger, db *mongo.Database) *TimelineRepository {
	return &TimelineRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique event index that makes Append idempotent,
// and the lookup index used by ListByTxRef.
func (r *TimelineRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("event_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "tx_ref", Value: 1}, {Key: "occurred_at", Value: 1}},
			Options: options.Index().SetName("tx_ref_occurred_at"),
		},
		{
			Keys:    bson.D{{Key: "payee_id", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("payee_id_occurred_at"),
		},
	}

	if _, err := r.db.Collection(TimelineCollectionName).Indexes().CreateMany(ctx, models); err != nil {
		r.logger.Error("Failed to create timeline indexes", "error", err)
		return fmt.Errorf("failed to create timeline indexes: %w", err)
	}
	return nil
}

// Append stores a projected event. Redelivered events hit the unique event_id
// index and come back as ErrDuplicateEntry.
func (r *TimelineRepository) Append(ctx context.Context, entry *timeline.Entry) error {
	collection := r.db.Collection(TimelineCollectionName)

	if _, err := collection.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return timeline.ErrDuplicateEntry{EventID: entry.EventID}
		}
		r.logger.Error("Failed to append timeline entry",
			"event_id", entry.EventID,
			"tx_ref", entry.TxRef,
			"error", err)
		return fmt.Errorf("failed to append timeline entry: %w", err)
	}

	return nil
}

// ListByTxRef retrieves a page of a transaction's history, oldest first
func (r *TimelineRepository) ListByTxRef(ctx context.Context, txRef string, limit, offset int) ([]*timeline.Entry, error) {
	collection := r.db.Collection(TimelineCollectionName)

	filter := bson.M{"tx_ref": txRef}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "version", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get timeline entries", "tx_ref", txRef, "error", err)
		return nil, fmt.Errorf("failed to get timeline entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]*timeline.Entry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode timeline entries", "tx_ref", txRef, "error", err)
		return nil, fmt.Errorf("failed to decode timeline entries: %w", err)
	}

	return entries, nil
}

// CountByTxRef counts the projected events of a transaction
func (r *TimelineRepository) CountByTxRef(ctx context.Context, txRef string) (int64, error) {
	collection := r.db.Collection(TimelineCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"tx_ref": txRef})
	if err != nil {
		r.logger.Error("Failed to count timeline entries", "tx_ref", txRef, "error", err)
		return 0, fmt.Errorf("failed to count timeline entries: %w", err)
	}

	return count, nil
}
