package types

import "errors"

// The closed set of domain errors. Use cases and repositories construct
// these (usually wrapped with fmt.Errorf and %w); only the HTTP layer maps
// them to responses. Anything unclassified collapses to ErrUnexpected there.
var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
	ErrInvalidEmail   = errors.New("invalid email")
	ErrInvalidID      = errors.New("invalid id")
	ErrUnexpected     = errors.New("unexpected error")
)
