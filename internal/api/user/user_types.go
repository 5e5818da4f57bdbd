package user

import (
	"net/url"

	"github.com/FACorreiaa/user-management-api/internal/api"
)

const (
	defaultPage     = 1
	defaultPageSize = 25

	minPageSize       = 5
	minUsernameLength = 5
	maxUsernameLength = 50
)

// CreateUserRequest is the expected JSON body for user creation.
type CreateUserRequest struct {
	Username        string `json:"username" example:"testuser"`
	Email           string `json:"email" example:"newuser@example.com"`
	Password        string `json:"password" example:"Str0ngP@ss!"`
	ConfirmPassword string `json:"confirmPassword" example:"Str0ngP@ss!"`
}

var _ api.BodyShape = (*CreateUserRequest)(nil)

// Validate collects every constraint violation for the shape.
func (req *CreateUserRequest) Validate() []api.FieldError {
	var errs []api.FieldError

	if l := len(req.Username); l < minUsernameLength || l > maxUsernameLength {
		errs = append(errs, api.FieldError{Field: "username", Message: "must be between 5 and 50 characters long"})
	}
	if !api.ValidEmail(req.Email) {
		errs = append(errs, api.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	errs = append(errs, api.ValidatePassword("password", req.Password)...)
	errs = append(errs, api.ValidatePassword("confirmPassword", req.ConfirmPassword)...)
	if req.Password != req.ConfirmPassword {
		errs = append(errs, api.FieldError{Field: "confirmPassword", Message: "must match password"})
	}

	return errs
}

// Input converts the validated body into the use-case input.
func (req *CreateUserRequest) Input() CreateUserInput {
	return CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
}

// UpdateUserRequest is the expected JSON body for a partial user update.
// Any subset of the fields may be present; password and confirmPassword must
// be provided together.
type UpdateUserRequest struct {
	Username        *string `json:"username,omitempty"`
	Email           *string `json:"email,omitempty"`
	Password        *string `json:"password,omitempty"`
	ConfirmPassword *string `json:"confirmPassword,omitempty"`
}

var _ api.BodyShape = (*UpdateUserRequest)(nil)

func (req *UpdateUserRequest) Validate() []api.FieldError {
	var errs []api.FieldError

	if req.Username != nil {
		if l := len(*req.Username); l < minUsernameLength || l > maxUsernameLength {
			errs = append(errs, api.FieldError{Field: "username", Message: "must be between 5 and 50 characters long"})
		}
	}
	if req.Email != nil && !api.ValidEmail(*req.Email) {
		errs = append(errs, api.FieldError{Field: "email", Message: "must be a valid email address"})
	}

	switch {
	case req.Password != nil && req.ConfirmPassword == nil:
		errs = append(errs, api.FieldError{Field: "confirmPassword", Message: "is required when password is provided"})
	case req.Password == nil && req.ConfirmPassword != nil:
		errs = append(errs, api.FieldError{Field: "password", Message: "is required when confirmPassword is provided"})
	case req.Password != nil && req.ConfirmPassword != nil:
		errs = append(errs, api.ValidatePassword("password", *req.Password)...)
		errs = append(errs, api.ValidatePassword("confirmPassword", *req.ConfirmPassword)...)
		if *req.Password != *req.ConfirmPassword {
			errs = append(errs, api.FieldError{Field: "confirmPassword", Message: "must match password"})
		}
	}

	return errs
}

func (req *UpdateUserRequest) Input() UpdateUserInput {
	return UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
}

// ListUsersQuery is the query-string shape for the listing endpoint.
type ListUsersQuery struct {
	Page     int64
	PageSize int64
}

var _ api.QueryShape = (*ListUsersQuery)(nil)

// Bind parses page/pageSize, applying defaults for missing parameters.
func (q *ListUsersQuery) Bind(values url.Values) []api.FieldError {
	var errs []api.FieldError

	page, ferr := api.QueryInt64(values, "page", defaultPage)
	if ferr != nil {
		errs = append(errs, *ferr)
	}
	pageSize, ferr := api.QueryInt64(values, "pageSize", defaultPageSize)
	if ferr != nil {
		errs = append(errs, *ferr)
	}

	q.Page = page
	q.PageSize = pageSize
	return errs
}

func (q *ListUsersQuery) Validate() []api.FieldError {
	var errs []api.FieldError

	if q.Page < 1 {
		errs = append(errs, api.FieldError{Field: "page", Message: "must be at least 1"})
	}
	if q.PageSize < minPageSize {
		errs = append(errs, api.FieldError{Field: "pageSize", Message: "must be at least 5"})
	}

	return errs
}

// CreateUserInput is the request-scoped input consumed by the create use case.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
}

// UpdateUserInput carries only the fields the client provided.
type UpdateUserInput struct {
	Username *string
	Email    *string
	Password *string
}
