package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/echotools/phonebook/internal/store"
)

// Person event types handed to the EventPublisher.
const (
	EventPersonAdded        = "person.added"
	EventPersonPhoneChanged = "person.phone_changed"
)

// EventPublisher announces successful person mutations.
type EventPublisher interface {
	PublishPersonEvent(ctx context.Context, eventType string, p *store.Person) error
}

// Resolver is the root resolver for the GraphQL schema. It serves both the
// Query and the Mutation root types.
type Resolver struct {
	Store     store.Store
	Publisher EventPublisher // optional
	Logger    *zap.Logger
}

// NewResolver creates a new resolver backed by the given store
func NewResolver(s store.Store, publisher EventPublisher, logger *zap.Logger) *Resolver {
	return &Resolver{
		Store:     s,
		Publisher: publisher,
		Logger:    logger,
	}
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Resolver) publish(ctx context.Context, eventType string, p *store.Person) {
	if r.Publisher == nil {
		return
	}
	if err := r.Publisher.PublishPersonEvent(ctx, eventType, p); err != nil {
		r.logger().Warn("Failed to publish person event",
			zap.String("type", eventType),
			zap.String("person_id", p.ID.Hex()),
			zap.Error(err))
	}
}
