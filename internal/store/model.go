package store

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Person is a phonebook entry. The address is stored as flat street/city fields.
type Person struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name   string             `bson:"name" json:"name" validate:"required"`
	Phone  *string            `bson:"phone,omitempty" json:"phone,omitempty"`
	Street string             `bson:"street" json:"street" validate:"required"`
	City   string             `bson:"city" json:"city" validate:"required"`
}

// Address is the read-time projection of a person's street and city.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
}

// Address builds a fresh Address from the stored fields.
func (p *Person) Address() Address {
	return Address{Street: p.Street, City: p.City}
}

// HasPhone reports whether the phone field is present.
func (p *Person) HasPhone() bool {
	return p.Phone != nil
}

// Validate checks the store-level constraints of a Person.
func (p *Person) Validate() error {
	return Validate("Person", p)
}

func (p *Person) clone() *Person {
	c := *p
	if p.Phone != nil {
		phone := *p.Phone
		c.Phone = &phone
	}
	return &c
}

// User is an account with an ordered list of friend references to persons.
type User struct {
	ID       primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Username string               `bson:"username" json:"username" validate:"required,min=3"`
	Friends  []primitive.ObjectID `bson:"friends" json:"friends"`
}

// Validate checks the store-level constraints of a User.
func (u *User) Validate() error {
	return Validate("User", u)
}

func (u *User) clone() *User {
	c := *u
	c.Friends = append([]primitive.ObjectID(nil), u.Friends...)
	return &c
}

// FieldViolation describes one failed constraint.
type FieldViolation struct {
	Field string
	Rule  string
	Param string
}

func (f FieldViolation) String() string {
	switch f.Rule {
	case "required":
		return fmt.Sprintf("%s: is required", f.Field)
	case "min":
		return fmt.Sprintf("%s: must be at least %s characters long", f.Field, f.Param)
	default:
		return fmt.Sprintf("%s: failed %s constraint", f.Field, f.Rule)
	}
}

// ValidationError is returned when a record or input breaks a constraint.
type ValidationError struct {
	Kind       string
	Violations []FieldViolation
	// Err is the underlying rejection when the database enforced the rule.
	Err error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s validation failed", e.Kind)
	}
	return fmt.Sprintf("%s validation failed: %s", e.Kind, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate runs the struct validation rules on v and reports failures as a
// *ValidationError labelled with kind.
func Validate(kind string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating %s: %w", kind, err)
	}

	ve := &ValidationError{Kind: kind}
	for _, fe := range verrs {
		ve.Violations = append(ve.Violations, FieldViolation{
			Field: fe.Field(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return ve
}

// IsInvalidInput reports whether err was caused by the caller's data rather
// than by the store itself.
func IsInvalidInput(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotFound) || errors.As(err, &ve)
}
