package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const filterSetsCollection = "filter_sets"

// EnsureMongoCollection creates the filter set indexes. The unique multikey
// index on target_ids keeps a target bound to a single set.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(filterSetsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "target_ids", Value: 1}},
			Options: options.Index().SetName("idx_filter_sets_target_ids").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_filter_sets_seq"),
		},
		{
			Keys:    bson.D{{Key: "guild_id", Value: 1}},
			Options: options.Index().SetName("idx_filter_sets_guild_id"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
