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
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoDB server error codes translated into store errors.
const (
	codeDocumentValidationFailure = 121
	codeNamespaceExists           = 48
)

// MongoStore persists persons and users in MongoDB.
type MongoStore struct {
	client    *mongo.Client
	db        *mongo.Database
	persons   *mongo.Collection
	users     *mongo.Collection
	opTimeout time.Duration
	logger    *zap.Logger
}

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, cfg Config, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.MongoURI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB", zap.String("database", cfg.Database))

	db := client.Database(cfg.Database)
	return &MongoStore{
		client:    client,
		db:        db,
		persons:   db.Collection(personCollectionName),
		users:     db.Collection(userCollectionName),
		opTimeout: cfg.OpTimeout,
		logger:    logger,
	}, nil
}

// CountPersons returns the number of documents in the persons collection.
func (s *MongoStore) CountPersons(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	count, err := s.persons.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count persons: %w", err)
	}
	return count, nil
}

// ListPersons returns persons ordered by _id, filtered on the existence of the
// phone field. A phone stored as explicit null counts as present.
func (s *MongoStore) ListPersons(ctx context.Context, phone PhonePresence) ([]*Person, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	filter := bson.M{}
	switch phone {
	case PhoneYes:
		filter["phone"] = bson.M{"$exists": true}
	case PhoneNo:
		filter["phone"] = bson.M{"$exists": false}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.persons.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	defer cursor.Close(ctx)

	persons := []*Person{}
	if err := cursor.All(ctx, &persons); err != nil {
		return nil, fmt.Errorf("failed to decode persons: %w", err)
	}
	return persons, nil
}

// FindPersonByName returns the first person whose name matches exactly.
func (s *MongoStore) FindPersonByName(ctx context.Context, name string) (*Person, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var p Person
	if err := s.persons.FindOne(ctx, bson.M{"name": name}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find person: %w", err)
	}
	return &p, nil
}

// PersonsByIDs returns the persons whose _id is in ids, in no particular order.
func (s *MongoStore) PersonsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Person, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	cursor, err := s.persons.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query persons by id: %w", err)
	}
	defer cursor.Close(ctx)

	var persons []*Person
	if err := cursor.All(ctx, &persons); err != nil {
		return nil, fmt.Errorf("failed to decode persons: %w", err)
	}
	return persons, nil
}

// CreatePerson validates and inserts a new person, assigning its ID.
func (s *MongoStore) CreatePerson(ctx context.Context, p *Person) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.persons.InsertOne(ctx, p); err != nil {
		p.ID = primitive.NilObjectID
		return translateWriteError("Person", fmt.Sprintf("person name %q", p.Name), err)
	}

	s.logger.Debug("Inserted person", zap.String("id", p.ID.Hex()), zap.String("name", p.Name))
	return nil
}

// SavePerson replaces the stored document with the same _id.
func (s *MongoStore) SavePerson(ctx context.Context, p *Person) error {
	if err := p.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	result, err := s.persons.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return translateWriteError("Person", fmt.Sprintf("person name %q", p.Name), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("person %s: %w", p.ID.Hex(), ErrNotFound)
	}
	return nil
}

// FindUserByUsername returns the user with the given username.
func (s *MongoStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var u User
	if err := s.users.FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// CreateUser validates and inserts a new user, assigning its ID.
func (s *MongoStore) CreateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Friends == nil {
		u.Friends = []primitive.ObjectID{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.users.InsertOne(ctx, u); err != nil {
		u.ID = primitive.NilObjectID
		return translateWriteError("User", fmt.Sprintf("username %q", u.Username), err)
	}
	return nil
}

// AddFriends appends person references to a user's friends with $addToSet,
// which keeps the existing order and skips ids already present.
func (s *MongoStore) AddFriends(ctx context.Context, username string, ids ...primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	update := bson.M{"$addToSet": bson.M{"friends": bson.M{"$each": ids}}}
	result, err := s.users.UpdateOne(ctx, bson.M{"username": username}, update)
	if err != nil {
		return fmt.Errorf("failed to add friends: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return nil
}

// Ping checks that the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB client: %w", err)
	}
	return nil
}

// translateWriteError maps duplicate-key and document-validation failures to
// store errors so callers can treat them as invalid input.
func translateWriteError(kind, subject string, err error) error {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}

	switch {
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s %w", subject, ErrDuplicate)
	case se.HasErrorCode(codeDocumentValidationFailure):
		return &ValidationError{Kind: kind, Err: err}
	default:
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
}
