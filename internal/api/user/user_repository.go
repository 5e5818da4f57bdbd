package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/user-management-api/app/observability/metrics"
	"github.com/FACorreiaa/user-management-api/internal/types"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo defines the contract for user data persistence. Every method may
// fail with a generic persistence error; the service lifts unclassified
// failures to types.ErrUnexpected. Lookups return (nil, nil) when no row
// matches so callers can distinguish absence from failure.
type UserRepo interface {
	// ListPage returns one page of users ordered by creation time, plus the
	// total number of users.
	ListPage(ctx context.Context, page, pageSize int64) ([]types.User, int64, error)

	FindByID(ctx context.Context, id uuid.UUID) (*types.User, error)
	FindByEmail(ctx context.Context, email string) (*types.User, error)
	FindByUsername(ctx context.Context, username string) (*types.User, error)

	// Create inserts the user. A unique-constraint violation surfaces as
	// types.ErrEmailExists or types.ErrUsernameExists.
	Create(ctx context.Context, u types.User) (*types.User, error)

	// Update persists username, email, password and updated_at for the id.
	Update(ctx context.Context, u types.User) (*types.User, error)

	// Delete removes the user. Deleting a missing id is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGXPool is the slice of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type PGXPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool PGXPool
}

func NewPostgresUserRepo(pgxpool PGXPool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgxpool,
	}
}

const userColumns = "id, username, email, password, validated, created_at, updated_at"

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Validated, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// recordQuery feeds the db instruments; shared by every method.
func recordQuery(ctx context.Context, operation string, start time.Time, err error) {
	m := metrics.Get()
	attrs := metric.WithAttributes(attribute.String("db.operation", operation))
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		m.DbQueryErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (r *PostgresUserRepo) ListPage(ctx context.Context, page, pageSize int64) ([]types.User, int64, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "ListPage", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
		attribute.Int64("page", page),
		attribute.Int64("page_size", pageSize),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "ListPage"), slog.Int64("page", page), slog.Int64("pageSize", pageSize))
	l.DebugContext(ctx, "Fetching user page")

	start := time.Now()

	var count int64
	err := r.pgpool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		recordQuery(ctx, "SELECT", start, err)
		l.ErrorContext(ctx, "Failed to count users", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB COUNT failed")
		return nil, 0, fmt.Errorf("database error counting users: %w", err)
	}

	query := fmt.Sprintf(`
        SELECT %s
        FROM users
        ORDER BY created_at
        LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.pgpool.Query(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		recordQuery(ctx, "SELECT", start, err)
		l.ErrorContext(ctx, "Failed to query user page", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, 0, fmt.Errorf("database error fetching users: %w", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var u types.User
		err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Validated, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			recordQuery(ctx, "SELECT", start, err)
			l.ErrorContext(ctx, "Failed to scan user row", slog.Any("error", err))
			span.RecordError(err)
			return nil, 0, fmt.Errorf("database error scanning user: %w", err)
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		recordQuery(ctx, "SELECT", start, err)
		l.ErrorContext(ctx, "Error iterating user rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, 0, fmt.Errorf("database error reading users: %w", err)
	}

	recordQuery(ctx, "SELECT", start, nil)
	l.DebugContext(ctx, "Fetched user page successfully", slog.Int("count", len(users)), slog.Int64("total", count))
	span.SetStatus(codes.Ok, "Users fetched")
	return users, count, nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "FindByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", id.String()),
	))
	defer span.End()

	return r.findOne(ctx, span, "id", fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns), id)
}

func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "FindByEmail", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	return r.findOne(ctx, span, "email", fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userColumns), email)
}

func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*types.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "FindByUsername", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	return r.findOne(ctx, span, "username", fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userColumns), username)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, span trace.Span, by, query string, arg any) (*types.User, error) {
	l := r.logger.With(slog.String("method", "findOne"), slog.String("by", by))
	l.DebugContext(ctx, "Looking up user")

	start := time.Now()
	u, err := scanUser(r.pgpool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		recordQuery(ctx, "SELECT", start, nil)
		span.SetStatus(codes.Ok, "No matching user")
		return nil, nil
	}
	if err != nil {
		recordQuery(ctx, "SELECT", start, err)
		l.ErrorContext(ctx, "Failed to look up user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error looking up user by %s: %w", by, err)
	}

	recordQuery(ctx, "SELECT", start, nil)
	span.SetStatus(codes.Ok, "User fetched")
	return u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, u types.User) (*types.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "Create", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Create"), slog.String("username", u.Username))
	l.DebugContext(ctx, "Inserting new user")

	query := fmt.Sprintf(`
        INSERT INTO users (id, username, email, password, validated, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING %s`, userColumns)

	start := time.Now()
	created, err := scanUser(r.pgpool.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.Password, u.Validated, u.CreatedAt, u.UpdatedAt))
	if err != nil {
		recordQuery(ctx, "INSERT", start, err)
		if domainErr := uniqueViolation(err); domainErr != nil {
			// The store constraint is the authoritative uniqueness guard; the
			// service pre-check only exists for a friendlier error path.
			l.WarnContext(ctx, "Unique constraint violation on insert", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Unique violation")
			return nil, domainErr
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return nil, fmt.Errorf("database error creating user: %w", err)
	}

	recordQuery(ctx, "INSERT", start, nil)
	l.InfoContext(ctx, "User created successfully", slog.String("userID", created.ID.String()))
	span.SetAttributes(attribute.String("db.user.id", created.ID.String()))
	span.SetStatus(codes.Ok, "User created")
	return created, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, u types.User) (*types.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "Update", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", u.ID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Update"), slog.String("userID", u.ID.String()))
	l.DebugContext(ctx, "Updating user")

	query := `
        UPDATE users
        SET username = $1, email = $2, password = $3, updated_at = $4
        WHERE id = $5`

	start := time.Now()
	tag, err := r.pgpool.Exec(ctx, query, u.Username, u.Email, u.Password, u.UpdatedAt, u.ID)
	if err != nil {
		recordQuery(ctx, "UPDATE", start, err)
		if domainErr := uniqueViolation(err); domainErr != nil {
			l.WarnContext(ctx, "Unique constraint violation on update", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Unique violation")
			return nil, domainErr
		}
		l.ErrorContext(ctx, "Failed to update user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return nil, fmt.Errorf("database error updating user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Row vanished between the service's lookup and this statement.
		recordQuery(ctx, "UPDATE", start, nil)
		l.WarnContext(ctx, "User not found for update")
		span.SetStatus(codes.Error, "User not found")
		return nil, fmt.Errorf("user not found for update: %w", types.ErrNotFound)
	}

	recordQuery(ctx, "UPDATE", start, nil)
	l.InfoContext(ctx, "User updated successfully")
	span.SetStatus(codes.Ok, "User updated")
	return &u, nil
}

func (r *PostgresUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "Delete", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", id.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Delete"), slog.String("userID", id.String()))
	l.DebugContext(ctx, "Deleting user")

	start := time.Now()
	tag, err := r.pgpool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		recordQuery(ctx, "DELETE", start, err)
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB DELETE failed")
		return fmt.Errorf("database error deleting user: %w", err)
	}

	recordQuery(ctx, "DELETE", start, nil)
	if tag.RowsAffected() == 0 {
		// Delete is idempotent: a missing row is not an error.
		l.DebugContext(ctx, "No user row to delete")
	} else {
		l.InfoContext(ctx, "User deleted successfully")
	}
	span.SetStatus(codes.Ok, "User deleted or already absent")
	return nil
}

// uniqueViolation maps a 23505 on one of the users unique constraints onto
// the matching domain error, nil for anything else.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return fmt.Errorf("email already taken: %w", types.ErrEmailExists)
	case "users_username_key":
		return fmt.Errorf("username already taken: %w", types.ErrUsernameExists)
	default:
		return nil
	}
}
