package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// personValidator mirrors the Person constraints as a $jsonSchema validator.
var personValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": bson.A{"name", "street", "city"},
		"properties": bson.M{
			"name":   bson.M{"bsonType": "string", "minLength": 1},
			"phone":  bson.M{"bsonType": bson.A{"string", "null"}},
			"street": bson.M{"bsonType": "string", "minLength": 1},
			"city":   bson.M{"bsonType": "string", "minLength": 1},
		},
	},
}

// userValidator mirrors the User constraints as a $jsonSchema validator.
var userValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": bson.A{"username"},
		"properties": bson.M{
			"username": bson.M{"bsonType": "string", "minLength": 3},
			"friends": bson.M{
				"bsonType": "array",
				"items":    bson.M{"bsonType": "objectId"},
			},
		},
	},
}

// EnsureSchema creates the collections with their validators, or updates the
// validators of existing collections, and creates the unique indexes.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.ensureCollection(ctx, personCollectionName, personValidator); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, userCollectionName, userValidator); err != nil {
		return err
	}

	// Unique index on persons.name
	_, err := s.persons.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetName("name_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create persons.name index: %w", err)
	}

	// Unique index on users.username
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetName("username_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users.username index: %w", err)
	}

	s.logger.Debug("Ensured collections and indexes")
	return nil
}

func (s *MongoStore) ensureCollection(ctx context.Context, name string, validator bson.M) error {
	opts := options.CreateCollection().
		SetValidator(validator).
		SetValidationLevel("moderate")

	err := s.db.CreateCollection(ctx, name, opts)
	if err == nil {
		return nil
	}

	var se mongo.ServerError
	if !errors.As(err, &se) || !se.HasErrorCode(codeNamespaceExists) {
		return fmt.Errorf("failed to create %s collection: %w", name, err)
	}

	// Collection already exists; refresh its validator.
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
	}
	if err := s.db.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to update %s validator: %w", name, err)
	}
	return nil
}

// Migrate ensures the schema, then counts persons breaking the model
// invariants and friend references pointing at missing persons. Nothing is
// rewritten; invalid documents must be fixed by hand.
func (s *MongoStore) Migrate(ctx context.Context) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var err error
	stats.TotalPersons, err = s.CountPersons(ctx)
	if err != nil {
		return nil, err
	}

	invalid := bson.M{
		"$or": bson.A{
			bson.M{"name": bson.M{"$exists": false}},
			bson.M{"name": ""},
			bson.M{"street": bson.M{"$exists": false}},
			bson.M{"street": ""},
			bson.M{"city": bson.M{"$exists": false}},
			bson.M{"city": ""},
		},
	}
	stats.InvalidPersons, err = s.persons.CountDocuments(ctx, invalid)
	if err != nil {
		return nil, fmt.Errorf("failed to count invalid persons: %w", err)
	}
	if stats.InvalidPersons > 0 {
		s.logger.Warn("Found persons violating the schema", zap.Int64("count", stats.InvalidPersons))
	}

	stats.TotalUsers, stats.DanglingFriendRefs, err = s.countDanglingFriends(ctx)
	if err != nil {
		return nil, err
	}

	stats.EndTime = time.Now()
	s.logger.Info("Migration completed",
		zap.Int64("total_persons", stats.TotalPersons),
		zap.Int64("invalid_persons", stats.InvalidPersons),
		zap.Int64("total_users", stats.TotalUsers),
		zap.Int64("dangling_friend_refs", stats.DanglingFriendRefs),
		zap.Duration("duration", stats.EndTime.Sub(stats.StartTime)))
	return stats, nil
}

func (s *MongoStore) countDanglingFriends(ctx context.Context) (users, dangling int64, err error) {
	cursor, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	refs := make(map[primitive.ObjectID]int64)
	for cursor.Next(ctx) {
		var u User
		if err := cursor.Decode(&u); err != nil {
			s.logger.Error("Failed to decode user", zap.Error(err))
			continue
		}
		users++
		for _, id := range u.Friends {
			refs[id]++
		}
	}
	if err := cursor.Err(); err != nil {
		return 0, 0, fmt.Errorf("cursor error: %w", err)
	}
	if len(refs) == 0 {
		return users, 0, nil
	}

	ids := make([]primitive.ObjectID, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	found, err := s.PersonsByIDs(ctx, ids)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range found {
		delete(refs, p.ID)
	}
	for _, n := range refs {
		dangling += n
	}
	return users, dangling, nil
}
