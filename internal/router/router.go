package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/FACorreiaa/user-management-api/internal/api"
	"github.com/FACorreiaa/user-management-api/internal/api/user"
)

// Config contains dependencies needed for the router setup
type Config struct {
	UserHandler user.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (like logger, requestID, recoverer) are expected
// to be applied *before* mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.Get("/health", healthCheck)

	r.Route("/users", func(r chi.Router) {
		r.Get("/", cfg.UserHandler.ListUsers)
		r.Post("/", cfg.UserHandler.CreateUser)
		r.Post("/{id}", cfg.UserHandler.UpdateUser)
		r.Delete("/{id}", cfg.UserHandler.DeleteUser)
	})

	return r
}

// healthCheck reports process liveness and the current server time.
func healthCheck(w http.ResponseWriter, r *http.Request) {
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{
		"status": "running",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
