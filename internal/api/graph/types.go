package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/echotools/phonebook/internal/store"
)

type personResolver struct {
	p *store.Person
}

func newPersonResolvers(persons []*store.Person) []*personResolver {
	out := make([]*personResolver, 0, len(persons))
	for _, p := range persons {
		out = append(out, &personResolver{p: p})
	}
	return out
}

func (r *personResolver) ID() graphql.ID {
	return graphql.ID(r.p.ID.Hex())
}

func (r *personResolver) Name() string {
	return r.p.Name
}

func (r *personResolver) Phone() *string {
	return r.p.Phone
}

// Address projects the flat street and city fields on every read.
func (r *personResolver) Address() *addressResolver {
	return &addressResolver{a: r.p.Address()}
}

type addressResolver struct {
	a store.Address
}

func (r *addressResolver) Street() string {
	return r.a.Street
}

func (r *addressResolver) City() string {
	return r.a.City
}

type userResolver struct {
	u     *store.User
	store store.PersonStore
}

func (r *userResolver) ID() graphql.ID {
	return graphql.ID(r.u.ID.Hex())
}

func (r *userResolver) Username() string {
	return r.u.Username
}

// Friends looks up all referenced persons in one query and returns them in
// the order of the friends list. References to missing persons are skipped.
func (r *userResolver) Friends(ctx context.Context) ([]*personResolver, error) {
	if len(r.u.Friends) == 0 {
		return []*personResolver{}, nil
	}

	persons, err := r.store.PersonsByIDs(ctx, r.u.Friends)
	if err != nil {
		return nil, err
	}

	byID := make(map[primitive.ObjectID]*store.Person, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
	}

	out := make([]*personResolver, 0, len(r.u.Friends))
	for _, id := range r.u.Friends {
		if p, ok := byID[id]; ok {
			out = append(out, &personResolver{p: p})
		}
	}
	return out, nil
}
