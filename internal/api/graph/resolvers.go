package graph

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/echotools/phonebook/internal/store"
)

// YesNo is the phone filter enum of allPersons.
type YesNo string

const (
	Yes YesNo = "YES"
	No  YesNo = "NO"
)

// AddPersonInput holds the addPerson arguments.
type AddPersonInput struct {
	Name   string  `json:"name" validate:"required"`
	Phone  *string `json:"phone,omitempty"`
	Street string  `json:"street" validate:"required"`
	City   string  `json:"city" validate:"required"`
}

func (in AddPersonInput) args() map[string]interface{} {
	args := map[string]interface{}{
		"name":   in.Name,
		"street": in.Street,
		"city":   in.City,
	}
	if in.Phone != nil {
		args["phone"] = *in.Phone
	}
	return args
}

// EditNumberInput holds the editNumber arguments.
type EditNumberInput struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
}

func (in EditNumberInput) args() map[string]interface{} {
	return map[string]interface{}{
		"name":  in.Name,
		"phone": in.Phone,
	}
}

// Query resolvers

// PersonCount resolves the personCount query
func (r *Resolver) PersonCount(ctx context.Context) (int32, error) {
	count, err := r.Store.CountPersons(ctx)
	if err != nil {
		return 0, err
	}
	if count > math.MaxInt32 {
		return 0, fmt.Errorf("person count %d overflows Int", count)
	}
	return int32(count), nil
}

// AllPersons resolves the allPersons query
func (r *Resolver) AllPersons(ctx context.Context, args struct{ Phone *YesNo }) ([]*personResolver, error) {
	filter := store.PhoneAny
	if args.Phone != nil {
		switch *args.Phone {
		case Yes:
			filter = store.PhoneYes
		case No:
			filter = store.PhoneNo
		default:
			return nil, fmt.Errorf("unknown phone filter %q", *args.Phone)
		}
	}

	persons, err := r.Store.ListPersons(ctx, filter)
	if err != nil {
		return nil, err
	}
	return newPersonResolvers(persons), nil
}

// FindPerson resolves the findPerson query
func (r *Resolver) FindPerson(ctx context.Context, args struct{ Name string }) (*personResolver, error) {
	p, err := r.Store.FindPersonByName(ctx, args.Name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &personResolver{p: p}, nil
}

// Me resolves the me query for the caller identity on the context.
func (r *Resolver) Me(ctx context.Context) (*userResolver, error) {
	username := UsernameFromContext(ctx)
	if username == "" {
		return nil, nil
	}

	u, err := r.Store.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &userResolver{u: u, store: r.Store}, nil
}

// Mutation resolvers

// AddPerson resolves the addPerson mutation
func (r *Resolver) AddPerson(ctx context.Context, in AddPersonInput) (*personResolver, error) {
	if err := store.Validate("Person", in); err != nil {
		return nil, inputError(err, in.args())
	}

	p := &store.Person{
		Name:   in.Name,
		Phone:  in.Phone,
		Street: in.Street,
		City:   in.City,
	}
	if err := r.Store.CreatePerson(ctx, p); err != nil {
		err = inputError(err, in.args())
		if !IsUserInputError(err) {
			r.logger().Error("Failed to add person", zap.String("name", in.Name), zap.Error(err))
		}
		return nil, err
	}

	r.publish(ctx, EventPersonAdded, p)
	return &personResolver{p: p}, nil
}

// EditNumber resolves the editNumber mutation. The lookup and the save are
// separate store calls; concurrent edits of one person are last-write-wins.
func (r *Resolver) EditNumber(ctx context.Context, in EditNumberInput) (*personResolver, error) {
	if err := store.Validate("Person", in); err != nil {
		return nil, inputError(err, in.args())
	}

	p, err := r.Store.FindPersonByName(ctx, in.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &UserInputError{
				Message:     fmt.Sprintf("person %q not found", in.Name),
				InvalidArgs: in.args(),
				Err:         err,
			}
		}
		return nil, err
	}

	phone := in.Phone
	p.Phone = &phone
	if err := r.Store.SavePerson(ctx, p); err != nil {
		err = inputError(err, in.args())
		if !IsUserInputError(err) {
			r.logger().Error("Failed to save person", zap.String("name", in.Name), zap.Error(err))
		}
		return nil, err
	}

	r.publish(ctx, EventPersonPhoneChanged, p)
	return &personResolver{p: p}, nil
}
