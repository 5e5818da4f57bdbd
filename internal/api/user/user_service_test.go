package user

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/FACorreiaa/user-management-api/app/observability/metrics"
	"github.com/FACorreiaa/user-management-api/internal/types"
)

// metricReader backs the instruments with a real SDK reader so tests can
// observe counter values.
var metricReader *sdkmetric.ManualReader

func TestMain(m *testing.M) {
	metricReader = sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader)))
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

// listRequestsTotal collects the current user_requests_total sum for the
// list operation. Counters are cumulative, so callers compare deltas.
func listRequestsTotal(t *testing.T) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, metricReader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, met := range scope.Metrics {
			if met.Name != "user_requests_total" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if op, ok := dp.Attributes.Value(attribute.Key("operation")); ok && op.AsString() == "list" {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// MockUserRepo is a mock implementation of the UserRepo interface
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) ListPage(ctx context.Context, page, pageSize int64) ([]types.User, int64, error) {
	args := m.Called(ctx, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]types.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) FindByUsername(ctx context.Context, username string) (*types.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) Create(ctx context.Context, u types.User) (*types.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) Update(ctx context.Context, u types.User) (*types.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockCache is a mock implementation of the cache.Cache interface
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetString(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCache) SetString(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) SetJSON(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// MockHasher is a mock implementation of the Hasher interface
type MockHasher struct {
	mock.Mock
}

func (m *MockHasher) Hash(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockHasher) Verify(plaintext, hash string) bool {
	args := m.Called(plaintext, hash)
	return args.Bool(0)
}

func newTestService(repo *MockUserRepo, c *MockCache, h *MockHasher) *UserServiceImpl {
	return NewUserService(repo, c, h, slog.Default())
}

func TestListUsersService(t *testing.T) {
	ctx := context.Background()
	query := ListUsersQuery{Page: 1, PageSize: 25}

	t.Run("CacheMissFetchesFromRepoAndRepopulates", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		users := []types.User{*testUser(), *testUser()}
		c.On("GetJSON", mock.Anything, "users:page=1:pageSize=25", mock.Anything).
			Return(false, nil).Once()
		repo.On("ListPage", mock.Anything, int64(1), int64(25)).
			Return(users, int64(2), nil).Once()
		c.On("SetJSON", mock.Anything, "users:page=1:pageSize=25", mock.Anything).
			Return(nil).Once()

		page, err := svc.ListUsers(ctx, query)

		assert.NoError(t, err)
		assert.Equal(t, int64(2), page.Count)
		assert.Equal(t, int64(1), page.TotalPages)
		assert.Len(t, page.Data, 2)

		repo.AssertExpectations(t)
		c.AssertExpectations(t)
	})

	t.Run("CacheHitSkipsRepo", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		cached := types.PaginatedData[types.User]{
			Data: []types.User{*testUser()}, Count: 1, TotalPages: 1, Page: 1, PageSize: 25,
		}
		c.On("GetJSON", mock.Anything, "users:page=1:pageSize=25", mock.Anything).
			Run(func(args mock.Arguments) {
				dest := args.Get(2).(*types.PaginatedData[types.User])
				*dest = cached
			}).
			Return(true, nil).Once()

		page, err := svc.ListUsers(ctx, query)

		assert.NoError(t, err)
		assert.Equal(t, cached.Count, page.Count)
		repo.AssertNotCalled(t, "ListPage", mock.Anything, mock.Anything, mock.Anything)
		c.AssertExpectations(t)
	})

	t.Run("CacheHitCountsAsListOperation", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		cached := types.PaginatedData[types.User]{
			Data: []types.User{}, Count: 0, TotalPages: 0, Page: 1, PageSize: 25,
		}
		c.On("GetJSON", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				dest := args.Get(2).(*types.PaginatedData[types.User])
				*dest = cached
			}).
			Return(true, nil).Once()

		before := listRequestsTotal(t)

		_, err := svc.ListUsers(ctx, query)

		// A list served from cache is still a completed list operation.
		assert.NoError(t, err)
		assert.Equal(t, before+1, listRequestsTotal(t))
		repo.AssertNotCalled(t, "ListPage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CacheReadFailureFallsThrough", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		c.On("GetJSON", mock.Anything, mock.Anything, mock.Anything).
			Return(false, errors.New("redis: connection refused")).Once()
		repo.On("ListPage", mock.Anything, int64(1), int64(25)).
			Return([]types.User{}, int64(0), nil).Once()
		c.On("SetJSON", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("redis: connection refused")).Once()

		page, err := svc.ListUsers(ctx, query)

		// Neither the failed read nor the failed write changes the outcome.
		assert.NoError(t, err)
		assert.Equal(t, int64(0), page.Count)
		assert.NotNil(t, page.Data)

		repo.AssertExpectations(t)
		c.AssertExpectations(t)
	})

	t.Run("TotalPagesRoundsUp", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		q := ListUsersQuery{Page: 1, PageSize: 10}
		c.On("GetJSON", mock.Anything, "users:page=1:pageSize=10", mock.Anything).
			Return(false, nil).Once()
		repo.On("ListPage", mock.Anything, int64(1), int64(10)).
			Return([]types.User{*testUser()}, int64(21), nil).Once()
		c.On("SetJSON", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		page, err := svc.ListUsers(ctx, q)

		assert.NoError(t, err)
		assert.Equal(t, int64(3), page.TotalPages)
	})

	t.Run("RepoFailureIsUnexpected", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		c.On("GetJSON", mock.Anything, mock.Anything, mock.Anything).
			Return(false, nil).Once()
		repo.On("ListPage", mock.Anything, int64(1), int64(25)).
			Return(nil, int64(0), errors.New("database error")).Once()

		_, err := svc.ListUsers(ctx, query)

		assert.ErrorIs(t, err, types.ErrUnexpected)
	})
}

func TestCreateUserService(t *testing.T) {
	ctx := context.Background()
	input := CreateUserInput{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "Password1!",
	}

	t.Run("Success", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		repo.On("FindByEmail", mock.Anything, input.Email).Return(nil, nil).Once()
		repo.On("FindByUsername", mock.Anything, input.Username).Return(nil, nil).Once()
		h.On("Hash", input.Password).Return("$2a$10$hash", nil).Once()
		repo.On("Create", mock.Anything, mock.MatchedBy(func(u types.User) bool {
			return u.Username == input.Username &&
				u.Email == input.Email &&
				u.Password == "$2a$10$hash" &&
				!u.Validated &&
				u.ID != uuid.Nil &&
				u.CreatedAt.Equal(u.UpdatedAt)
		})).Return(testUser(), nil).Once()

		created, err := svc.CreateUser(ctx, input)

		assert.NoError(t, err)
		assert.NotNil(t, created)

		repo.AssertExpectations(t)
		h.AssertExpectations(t)
	})

	t.Run("EmailConflictCheckedBeforeUsername", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		repo.On("FindByEmail", mock.Anything, input.Email).Return(testUser(), nil).Once()

		_, err := svc.CreateUser(ctx, input)

		// Even if the username also collides, the email conflict wins.
		assert.ErrorIs(t, err, types.ErrEmailExists)
		repo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("UsernameConflict", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		repo.On("FindByEmail", mock.Anything, input.Email).Return(nil, nil).Once()
		repo.On("FindByUsername", mock.Anything, input.Username).Return(testUser(), nil).Once()

		_, err := svc.CreateUser(ctx, input)

		assert.ErrorIs(t, err, types.ErrUsernameExists)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		_, err := svc.CreateUser(ctx, CreateUserInput{
			Username: "testuser",
			Email:    "not-an-email",
			Password: "Password1!",
		})

		assert.ErrorIs(t, err, types.ErrInvalidEmail)
		repo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	})

	t.Run("LateStoreConflictPropagates", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		repo.On("FindByEmail", mock.Anything, input.Email).Return(nil, nil).Once()
		repo.On("FindByUsername", mock.Anything, input.Username).Return(nil, nil).Once()
		h.On("Hash", input.Password).Return("$2a$10$hash", nil).Once()
		// Concurrent create won the race; the store constraint reports it.
		repo.On("Create", mock.Anything, mock.AnythingOfType("types.User")).
			Return(nil, types.ErrEmailExists).Once()

		_, err := svc.CreateUser(ctx, input)

		assert.ErrorIs(t, err, types.ErrEmailExists)
	})

	t.Run("HashFailureIsUnexpected", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		repo.On("FindByEmail", mock.Anything, input.Email).Return(nil, nil).Once()
		repo.On("FindByUsername", mock.Anything, input.Username).Return(nil, nil).Once()
		h.On("Hash", input.Password).Return("", errors.New("bcrypt: cost out of range")).Once()

		_, err := svc.CreateUser(ctx, input)

		assert.ErrorIs(t, err, types.ErrUnexpected)
	})
}

func TestUpdateUserService(t *testing.T) {
	ctx := context.Background()

	t.Run("PartialUpdateKeepsOtherFields", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		existing := testUser()
		existing.CreatedAt = time.Now().UTC().Add(-time.Hour)
		existing.UpdatedAt = existing.CreatedAt
		newName := "reneweduser"

		repo.On("FindByID", mock.Anything, existing.ID).Return(existing, nil).Once()
		repo.On("Update", mock.Anything, mock.MatchedBy(func(u types.User) bool {
			return u.Username == newName &&
				u.Email == existing.Email &&
				u.Password == existing.Password &&
				u.UpdatedAt.After(u.CreatedAt)
		})).Return(existing, nil).Once()

		_, err := svc.UpdateUser(ctx, existing.ID.String(), UpdateUserInput{Username: &newName})

		assert.NoError(t, err)
		repo.AssertExpectations(t)
		h.AssertNotCalled(t, "Hash", mock.Anything)
	})

	t.Run("PasswordIsRehashed", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		existing := testUser()
		newPassword := "NewPassword1!"

		repo.On("FindByID", mock.Anything, existing.ID).Return(existing, nil).Once()
		h.On("Hash", newPassword).Return("$2a$10$newhash", nil).Once()
		repo.On("Update", mock.Anything, mock.MatchedBy(func(u types.User) bool {
			return u.Password == "$2a$10$newhash"
		})).Return(existing, nil).Once()

		_, err := svc.UpdateUser(ctx, existing.ID.String(), UpdateUserInput{Password: &newPassword})

		assert.NoError(t, err)
		h.AssertExpectations(t)
	})

	t.Run("InvalidID", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		_, err := svc.UpdateUser(ctx, "not-a-uuid", UpdateUserInput{})

		assert.ErrorIs(t, err, types.ErrInvalidID)
		repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		id := uuid.New()
		repo.On("FindByID", mock.Anything, id).Return(nil, nil).Once()

		_, err := svc.UpdateUser(ctx, id.String(), UpdateUserInput{})

		assert.ErrorIs(t, err, types.ErrNotFound)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestDeleteUserService(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		id := uuid.New()
		repo.On("Delete", mock.Anything, id).Return(nil).Once()

		err := svc.DeleteUser(ctx, id.String())

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("InvalidID", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		err := svc.DeleteUser(ctx, "not-a-uuid")

		assert.ErrorIs(t, err, types.ErrInvalidID)
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("RepeatedDeleteStaysSuccessful", func(t *testing.T) {
		repo := new(MockUserRepo)
		c := new(MockCache)
		h := new(MockHasher)
		svc := newTestService(repo, c, h)

		id := uuid.New()
		repo.On("Delete", mock.Anything, id).Return(nil).Twice()

		assert.NoError(t, svc.DeleteUser(ctx, id.String()))
		assert.NoError(t, svc.DeleteUser(ctx, id.String()))
	})
}
