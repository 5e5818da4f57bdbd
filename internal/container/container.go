package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FACorreiaa/user-management-api/app/cache"
	database "github.com/FACorreiaa/user-management-api/app/db"
	"github.com/FACorreiaa/user-management-api/config"
	"github.com/FACorreiaa/user-management-api/internal/api/user"
)

// Container holds all application dependencies. Bindings are established
// once at startup and never rebound while the process serves traffic.
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	Cache       cache.Cache
	Hasher      user.Hasher
	UserHandler *user.HandlerImpl
}

// NewContainer initializes and returns a new dependency container
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	// Initialize database
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	appCache, err := newCache(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize cache", slog.Any("error", err))
		pool.Close()
		return nil, err
	}

	hasher := user.NewBcryptHasher()

	userRepo := user.NewPostgresUserRepo(pool, logger)
	userService := user.NewUserService(userRepo, appCache, hasher, logger)
	userHandlerImpl := user.NewHandlerImpl(userService, logger)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Cache:       appCache,
		Hasher:      hasher,
		UserHandler: userHandlerImpl,
	}, nil
}

// newCache selects the cache backend from configuration. Redis is the
// production backend; memory keeps development and CI free of extra
// infrastructure.
func newCache(cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisCache(cfg.Repositories.Redis.URL, cfg.Cache.TTL, logger)
	case "memory", "":
		logger.Info("Using in-memory cache backend")
		return cache.NewMemoryCache(cfg.Cache.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if rc, ok := c.Cache.(*cache.RedisCache); ok {
		if err := rc.Close(); err != nil {
			c.Logger.Warn("Error closing redis cache", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}

// RunMigrations runs database migrations
func (c *Container) RunMigrations(connectionURL string) error {
	return database.RunMigrations(connectionURL, c.Logger)
}
