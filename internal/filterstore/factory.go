package filterstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"killrelay/internal/config"
	"killrelay/internal/constants"
	"killrelay/internal/logger"
)

// Backends carries the connections a store may be built on. Only the one
// matching the configured type needs to be set.
type Backends struct {
	Postgres *sql.DB
	Redis    *redis.Client
	Mongo    *mongo.Database
}

func New(ctx context.Context, cfg config.FilterStoreConfig, backends Backends, log logger.Logger) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case constants.StoreTypeMemory, "":
		store := NewMemoryStore()
		if cfg.SeedFile != "" {
			sets, err := LoadSeed(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := store.Seed(ctx, sets); err != nil {
				return nil, fmt.Errorf("failed to seed filter sets: %w", err)
			}
			log.Infow("Seeded in-memory filter store", "file", cfg.SeedFile, "filter_sets", len(sets))
		}
		return store, nil
	case constants.StoreTypePostgres:
		if backends.Postgres == nil {
			return nil, fmt.Errorf("postgres filter store requires a database connection")
		}
		return NewPostgresStore(backends.Postgres), nil
	case constants.StoreTypeRedis:
		if backends.Redis == nil {
			return nil, fmt.Errorf("redis filter store requires a redis client")
		}
		return NewRedisStore(backends.Redis), nil
	case constants.StoreTypeMongoDB:
		if backends.Mongo == nil {
			return nil, fmt.Errorf("mongodb filter store requires a database")
		}
		return NewMongoStore(backends.Mongo), nil
	default:
		return nil, fmt.Errorf("unknown filter store type: %s", cfg.Type)
	}
}
