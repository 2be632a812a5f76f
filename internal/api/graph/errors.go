package graph

import (
	"errors"

	"github.com/echotools/phonebook/internal/store"
)

// CodeBadUserInput is the extensions.code of errors caused by client input.
const CodeBadUserInput = "BAD_USER_INPUT"

// UserInputError is returned by mutations when the store rejects the caller's
// arguments. The engine attaches Extensions to the GraphQL error.
type UserInputError struct {
	Message     string
	InvalidArgs map[string]interface{}
	Err         error
}

func (e *UserInputError) Error() string {
	return e.Message
}

func (e *UserInputError) Unwrap() error {
	return e.Err
}

func (e *UserInputError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code":        CodeBadUserInput,
		"invalidArgs": e.InvalidArgs,
	}
}

// IsUserInputError reports whether err is, or wraps, a *UserInputError.
func IsUserInputError(err error) bool {
	var uie *UserInputError
	return errors.As(err, &uie)
}

// inputError converts store rejections into a *UserInputError carrying args.
// Other errors are returned unchanged.
func inputError(err error, args map[string]interface{}) error {
	if !store.IsInvalidInput(err) {
		return err
	}
	return &UserInputError{Message: err.Error(), InvalidArgs: args, Err: err}
}
