package api

import (
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// FieldError is a single human-readable reason a request shape was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Rejection is a request-shape validation failure. It is raised before any
// domain logic runs and always maps to a 400; it is a different channel from
// the domain error taxonomy and must never be conflated with it.
type Rejection struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func (rej *Rejection) Error() string {
	reasons := make([]string, 0, len(rej.Errors))
	for _, fe := range rej.Errors {
		reasons = append(reasons, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	if len(reasons) == 0 {
		return rej.Message
	}
	return fmt.Sprintf("%s (%s)", rej.Message, strings.Join(reasons, "; "))
}

// WriteRejection writes the rejection as the 400 response body.
func WriteRejection(w http.ResponseWriter, r *http.Request, rej *Rejection) {
	WriteJSONResponse(w, r, http.StatusBadRequest, rej)
}

// BodyShape is implemented by request body DTOs. Validate collects every
// violation for the shape rather than stopping at the first one.
type BodyShape interface {
	Validate() []FieldError
}

// QueryShape is implemented by query-string DTOs. Bind parses raw values and
// applies typed defaults for missing optional fields; Validate then applies
// the constraints.
type QueryShape interface {
	Bind(values url.Values) []FieldError
	Validate() []FieldError
}

// DecodeValidBody decodes the request body into dst and validates it.
// Returns nil on success, otherwise the rejection to write.
func DecodeValidBody(w http.ResponseWriter, r *http.Request, dst BodyShape) *Rejection {
	if err := DecodeJSONBody(w, r, dst); err != nil {
		return &Rejection{
			Message: "Invalid request body",
			Errors:  []FieldError{{Field: "body", Message: err.Error()}},
		}
	}
	if errs := dst.Validate(); len(errs) > 0 {
		return &Rejection{Message: "Validation failed", Errors: errs}
	}
	return nil
}

// DecodeValidQuery binds the query string into dst and validates it.
func DecodeValidQuery(r *http.Request, dst QueryShape) *Rejection {
	if errs := dst.Bind(r.URL.Query()); len(errs) > 0 {
		return &Rejection{Message: "Invalid query format", Errors: errs}
	}
	if errs := dst.Validate(); len(errs) > 0 {
		return &Rejection{Message: "Validation failed", Errors: errs}
	}
	return nil
}

// QueryInt64 parses an optional integer query parameter, falling back to
// def when the parameter is absent or empty.
func QueryInt64(values url.Values, key string, def int64) (int64, *FieldError) {
	raw := values.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &FieldError{Field: key, Message: fmt.Sprintf("must be an integer, got %q", raw)}
	}
	return n, nil
}

// ValidEmail reports whether s is a syntactically valid address. The address
// must be bare (no display name).
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// passwordSpecials is the fixed set of accepted special characters. Anything
// outside it, even other punctuation, does not count toward the requirement.
const passwordSpecials = "@$!%*?&"

// ValidatePassword applies the password strength policy to the named field:
// length in [8,100] and at least one uppercase letter, one lowercase letter,
// one digit and one special character. Every missing class is reported as its
// own reason so clients can fix them in one round trip.
func ValidatePassword(field, password string) []FieldError {
	var errs []FieldError

	if len(password) < 8 {
		errs = append(errs, FieldError{Field: field, Message: "must be at least 8 characters long"})
	}
	if len(password) > 100 {
		errs = append(errs, FieldError{Field: field, Message: "must be at most 100 characters long"})
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errs = append(errs, FieldError{Field: field, Message: "must contain at least one uppercase letter"})
	}
	if !hasLower {
		errs = append(errs, FieldError{Field: field, Message: "must contain at least one lowercase letter"})
	}
	if !hasDigit {
		errs = append(errs, FieldError{Field: field, Message: "must contain at least one digit"})
	}
	if !hasSpecial {
		errs = append(errs, FieldError{Field: field, Message: "must contain at least one special character"})
	}

	return errs
}
