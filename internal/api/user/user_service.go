package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/user-management-api/app/cache"
	"github.com/FACorreiaa/user-management-api/app/observability/metrics"
	"github.com/FACorreiaa/user-management-api/internal/api"
	"github.com/FACorreiaa/user-management-api/internal/types"
)

var _ UserService = (*UserServiceImpl)(nil)

// UserService defines the user management use cases. Failures are reported
// through the domain error taxonomy in the types package; anything the service
// cannot classify is wrapped in types.ErrUnexpected.
type UserService interface {
	ListUsers(ctx context.Context, query ListUsersQuery) (*types.PaginatedData[types.User], error)
	CreateUser(ctx context.Context, input CreateUserInput) (*types.User, error)
	UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*types.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// UserServiceImpl provides the business logic for user management.
type UserServiceImpl struct {
	logger *slog.Logger
	repo   UserRepo
	cache  cache.Cache
	hasher Hasher
}

// NewUserService creates the user service with its dependencies.
func NewUserService(repo UserRepo, c cache.Cache, hasher Hasher, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger: logger,
		repo:   repo,
		cache:  c,
		hasher: hasher,
	}
}

func listCacheKey(page, pageSize int64) string {
	return fmt.Sprintf("users:page=%d:pageSize=%d", page, pageSize)
}

// ListUsers returns one page of users, serving from the cache when a fresh
// entry exists. Cache failures degrade to a database read, never to an error.
func (s *UserServiceImpl) ListUsers(ctx context.Context, query ListUsersQuery) (*types.PaginatedData[types.User], error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "ListUsers", trace.WithAttributes(
		attribute.Int64("page", query.Page),
		attribute.Int64("page_size", query.PageSize),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ListUsers"),
		slog.Int64("page", query.Page), slog.Int64("pageSize", query.PageSize))

	key := listCacheKey(query.Page, query.PageSize)
	m := metrics.Get()

	var cached types.PaginatedData[types.User]
	found, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		// A broken cache read is a miss, not a request failure.
		l.WarnContext(ctx, "Cache read failed, falling back to database", slog.Any("error", err))
	}
	if found && err == nil {
		m.CacheHitsTotal.Add(ctx, 1)
		m.UserRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "list")))
		l.DebugContext(ctx, "Served user page from cache")
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "Users listed from cache")
		return &cached, nil
	}
	m.CacheMissesTotal.Add(ctx, 1)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	users, count, err := s.repo.ListPage(ctx, query.Page, query.PageSize)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list users", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list users")
		return nil, fmt.Errorf("listing users: %w", types.ErrUnexpected)
	}
	if users == nil {
		users = []types.User{}
	}

	page := &types.PaginatedData[types.User]{
		Data:       users,
		Count:      count,
		TotalPages: types.TotalPages(count, query.PageSize),
		Page:       query.Page,
		PageSize:   query.PageSize,
	}

	if err := s.cache.SetJSON(ctx, key, page); err != nil {
		// Best effort write; the response is already correct.
		l.WarnContext(ctx, "Cache write failed", slog.Any("error", err))
	}

	m.UserRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "list")))
	span.SetStatus(codes.Ok, "Users listed")
	return page, nil
}

// CreateUser registers a new user. The email and username pre-checks give a
// precise conflict error; the store's unique constraints remain the
// authoritative guard under concurrency.
func (s *UserServiceImpl) CreateUser(ctx context.Context, input CreateUserInput) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "CreateUser", trace.WithAttributes(
		attribute.String("username", input.Username),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CreateUser"), slog.String("username", input.Username))
	l.DebugContext(ctx, "Creating user")

	if !api.ValidEmail(input.Email) {
		span.SetStatus(codes.Error, "Invalid email")
		return nil, fmt.Errorf("email %q rejected: %w", input.Email, types.ErrInvalidEmail)
	}

	// Email is checked before username so a request violating both reports
	// the email conflict.
	existing, err := s.repo.FindByEmail(ctx, input.Email)
	if err != nil {
		l.ErrorContext(ctx, "Failed to check email uniqueness", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Email lookup failed")
		return nil, fmt.Errorf("checking email uniqueness: %w", types.ErrUnexpected)
	}
	if existing != nil {
		span.SetStatus(codes.Error, "Email already registered")
		return nil, fmt.Errorf("email already registered: %w", types.ErrEmailExists)
	}

	existing, err = s.repo.FindByUsername(ctx, input.Username)
	if err != nil {
		l.ErrorContext(ctx, "Failed to check username uniqueness", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Username lookup failed")
		return nil, fmt.Errorf("checking username uniqueness: %w", types.ErrUnexpected)
	}
	if existing != nil {
		span.SetStatus(codes.Error, "Username already taken")
		return nil, fmt.Errorf("username already taken: %w", types.ErrUsernameExists)
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Password hashing failed")
		return nil, fmt.Errorf("hashing password: %w", types.ErrUnexpected)
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, types.User{
		ID:        uuid.New(),
		Username:  input.Username,
		Email:     input.Email,
		Password:  hashed,
		Validated: false,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, types.ErrEmailExists) || errors.Is(err, types.ErrUsernameExists) {
			span.SetStatus(codes.Error, "Uniqueness conflict")
			return nil, err
		}
		l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		return nil, fmt.Errorf("creating user: %w", types.ErrUnexpected)
	}

	metrics.Get().UserRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "create")))
	l.InfoContext(ctx, "User created", slog.String("userID", created.ID.String()))
	span.SetAttributes(attribute.String("user.id", created.ID.String()))
	span.SetStatus(codes.Ok, "User created")
	return created, nil
}

// UpdateUser applies the provided fields to an existing user. Absent fields
// keep their stored values; a provided password is re-hashed.
func (s *UserServiceImpl) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "UpdateUser", trace.WithAttributes(
		attribute.String("user.id", id),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "UpdateUser"), slog.String("userID", id))
	l.DebugContext(ctx, "Updating user")

	userID, err := uuid.Parse(id)
	if err != nil {
		span.SetStatus(codes.Error, "Invalid user id")
		return nil, fmt.Errorf("id %q rejected: %w", id, types.ErrInvalidID)
	}

	current, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch user for update", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, fmt.Errorf("fetching user for update: %w", types.ErrUnexpected)
	}
	if current == nil {
		span.SetStatus(codes.Error, "User not found")
		return nil, fmt.Errorf("user %s not found: %w", id, types.ErrNotFound)
	}

	if input.Username != nil {
		current.Username = *input.Username
	}
	if input.Email != nil {
		if !api.ValidEmail(*input.Email) {
			span.SetStatus(codes.Error, "Invalid email")
			return nil, fmt.Errorf("email %q rejected: %w", *input.Email, types.ErrInvalidEmail)
		}
		current.Email = *input.Email
	}
	if input.Password != nil {
		hashed, err := s.hasher.Hash(*input.Password)
		if err != nil {
			l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Password hashing failed")
			return nil, fmt.Errorf("hashing password: %w", types.ErrUnexpected)
		}
		current.Password = hashed
	}
	current.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, *current)
	if err != nil {
		if errors.Is(err, types.ErrEmailExists) || errors.Is(err, types.ErrUsernameExists) || errors.Is(err, types.ErrNotFound) {
			span.SetStatus(codes.Error, "Update conflict")
			return nil, err
		}
		l.ErrorContext(ctx, "Failed to update user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Update failed")
		return nil, fmt.Errorf("updating user: %w", types.ErrUnexpected)
	}

	metrics.Get().UserRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "update")))
	l.InfoContext(ctx, "User updated")
	span.SetStatus(codes.Ok, "User updated")
	return updated, nil
}

// DeleteUser removes a user by id. Deleting an id that does not exist
// succeeds, so retried deletes are safe.
func (s *UserServiceImpl) DeleteUser(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("UserService").Start(ctx, "DeleteUser", trace.WithAttributes(
		attribute.String("user.id", id),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "DeleteUser"), slog.String("userID", id))
	l.DebugContext(ctx, "Deleting user")

	userID, err := uuid.Parse(id)
	if err != nil {
		span.SetStatus(codes.Error, "Invalid user id")
		return fmt.Errorf("id %q rejected: %w", id, types.ErrInvalidID)
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return fmt.Errorf("deleting user: %w", types.ErrUnexpected)
	}

	metrics.Get().UserRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "delete")))
	l.InfoContext(ctx, "User deleted")
	span.SetStatus(codes.Ok, "User deleted")
	return nil
}
