package filterstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"killrelay/pkg/models"
)

const (
	MongoCollection         = "filter_sets"
	MongoCountersCollection = "counters"
)

type MongoStore struct {
	collection *mongo.Collection
	counters   *mongo.Collection
	now        func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(MongoCollection),
		counters:   db.Collection(MongoCountersCollection),
		now:        time.Now,
	}
}

// nextSeq allocates the next declaration position from the counters
// collection.
func (s *MongoStore) nextSeq(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": MongoCollection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate filter set sequence: %w", err)
	}
	return counter.Seq, nil
}

func normalize(set *models.FilterSet) *models.FilterSet {
	if set.Filters == nil {
		set.Filters = []string{}
	}
	return set
}

func (s *MongoStore) List(ctx context.Context) ([]models.FilterSet, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter sets: %w", err)
	}
	defer cursor.Close(ctx)

	sets := make([]models.FilterSet, 0)
	for cursor.Next(ctx) {
		var set models.FilterSet
		if err := cursor.Decode(&set); err != nil {
			return nil, fmt.Errorf("failed to decode filter set: %w", err)
		}
		sets = append(sets, *normalize(&set))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return sets, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.FilterSet, error) {
	var set models.FilterSet
	err := s.collection.FindOne(ctx, filter).Decode(&set)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter set: %w", err)
	}
	return normalize(&set), nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.FilterSet, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetByTarget(ctx context.Context, targetID uint64) (*models.FilterSet, error) {
	return s.findOne(ctx, bson.M{"target_ids": int64(targetID)})
}

func (s *MongoStore) checkTargets(ctx context.Context, set *models.FilterSet) error {
	targets := make(bson.A, len(set.TargetIDs))
	for i, t := range set.TargetIDs {
		targets[i] = int64(t)
	}
	owner, err := s.findOne(ctx, bson.M{
		"target_ids": bson.M{"$in": targets},
		"_id":        bson.M{"$ne": set.ID},
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, t := range owner.TargetIDs {
		if set.HasTarget(t) {
			return errTargetTaken(t, owner.ID)
		}
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, set *models.FilterSet) error {
	if err := prepareCreate(set, s.now().UTC().Truncate(time.Millisecond)); err != nil {
		return err
	}
	if err := s.checkTargets(ctx, set); err != nil {
		return err
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	set.Seq = seq

	if _, err := s.collection.InsertOne(ctx, set); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errConflictID(set.ID)
		}
		return fmt.Errorf("failed to create filter set: %w", err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, set *models.FilterSet) error {
	if err := validate(set); err != nil {
		return err
	}
	if err := s.checkTargets(ctx, set); err != nil {
		return err
	}
	normalize(set)

	update := bson.M{
		"$set": bson.M{
			"guild_id":    set.GuildID,
			"target_ids":  set.TargetIDs,
			"filters":     set.Filters,
			"include_npc": set.IncludeNPC,
			"updated_at":  s.now().UTC().Truncate(time.Millisecond),
		},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.FilterSet
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": set.ID}, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errTargetTaken(set.TargetIDs[0], "unknown")
		}
		return fmt.Errorf("failed to update filter set: %w", err)
	}
	*set = *normalize(&updated)
	return nil
}

func (s *MongoStore) AddFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	update := bson.M{
		"$push": bson.M{"filters": filter},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": s.now().UTC().Truncate(time.Millisecond)},
	}
	set, err := s.findAndModify(ctx, bson.M{"_id": id, "filters": bson.M{"$ne": filter}}, update)
	if errors.Is(err, ErrNotFound) {
		// Either the set is gone or the filter is already present.
		return s.Get(ctx, id)
	}
	return set, err
}

func (s *MongoStore) RemoveFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	update := bson.M{
		"$pull": bson.M{"filters": filter},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": s.now().UTC().Truncate(time.Millisecond)},
	}
	set, err := s.findAndModify(ctx, bson.M{"_id": id, "filters": filter}, update)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrFilterNotFound
	}
	return set, err
}

func (s *MongoStore) findAndModify(ctx context.Context, filter, update bson.M) (*models.FilterSet, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var set models.FilterSet
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&set)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to modify filter set: %w", err)
	}
	return normalize(&set), nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete filter set: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
