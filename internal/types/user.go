package types

import (
	"time"

	"github.com/google/uuid"
)

// User is the domain entity persisted by the repository. Password always
// holds the bcrypt hash; plaintext never leaves the create/update use cases.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Validated bool      `json:"validated"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaginatedData is one page of results plus the totals a client needs to
// render a pager. TotalPages is always ceil(Count/PageSize).
type PaginatedData[T any] struct {
	Data       []T   `json:"data"`
	Count      int64 `json:"count"`
	TotalPages int64 `json:"totalPages"`
	Page       int64 `json:"page"`
	PageSize   int64 `json:"pageSize"`
}

// TotalPages computes the page count for a result set.
func TotalPages(count, pageSize int64) int64 {
	if pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}
