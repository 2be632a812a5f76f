// Package store holds the phonebook data model and the document stores that
// persist it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"

	personCollectionName = "persons"
	userCollectionName   = "users"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// PhonePresence selects persons by whether their phone field exists.
type PhonePresence int

const (
	PhoneAny PhonePresence = iota
	PhoneYes
	PhoneNo
)

// PersonStore is the persistence boundary for Person records.
type PersonStore interface {
	CountPersons(ctx context.Context) (int64, error)
	ListPersons(ctx context.Context, phone PhonePresence) ([]*Person, error)
	FindPersonByName(ctx context.Context, name string) (*Person, error)
	PersonsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Person, error)
	CreatePerson(ctx context.Context, p *Person) error
	SavePerson(ctx context.Context, p *Person) error
}

// UserStore is the persistence boundary for User records.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	AddFriends(ctx context.Context, username string, ids ...primitive.ObjectID) error
}

// Store is a connected document store.
type Store interface {
	PersonStore
	UserStore

	// EnsureSchema creates collections, validators and unique indexes.
	EnsureSchema(ctx context.Context) error
	// Migrate ensures the schema and reports records violating the model.
	Migrate(ctx context.Context) (*MigrationStats, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config selects and configures a Store implementation.
type Config struct {
	Driver         string
	MongoURI       string
	Database       string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

// DefaultConfig returns a Config pointing at a local MongoDB.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverMongo,
		MongoURI:       "mongodb://localhost:27017",
		Database:       "phonebook",
		ConnectTimeout: 10 * time.Second,
		OpTimeout:      10 * time.Second,
	}
}

// Validate checks the configuration for the selected driver.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo_uri is required")
		}
		if c.Database == "" {
			return fmt.Errorf("database is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

// Open connects to the configured store. For MongoDB the call blocks until the
// server has answered a ping or ConnectTimeout has elapsed.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case DriverMemory:
		logger.Info("Using in-memory store")
		return NewMemoryStore(), nil
	default:
		return ConnectMongo(ctx, cfg, logger)
	}
}

// MigrationStats reports the result of a schema migration.
type MigrationStats struct {
	TotalPersons       int64
	InvalidPersons     int64
	TotalUsers         int64
	DanglingFriendRefs int64
	StartTime          time.Time
	EndTime            time.Time
}
