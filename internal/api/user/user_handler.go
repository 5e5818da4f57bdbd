package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/user-management-api/internal/api"
	"github.com/FACorreiaa/user-management-api/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	ListUsers(w http.ResponseWriter, r *http.Request)
	CreateUser(w http.ResponseWriter, r *http.Request)
	UpdateUser(w http.ResponseWriter, r *http.Request)
	DeleteUser(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	userService UserService
	logger      *slog.Logger
}

// NewHandlerImpl creates a new user HandlerImpl instance.
func NewHandlerImpl(userService UserService, logger *slog.Logger) *HandlerImpl {
	if logger == nil {
		panic("PANIC: Attempting to create HandlerImpl with nil logger!")
	}

	return &HandlerImpl{
		userService: userService,
		logger:      logger,
	}
}

// domainErrorBody is the wire shape for classified domain failures. Field is
// only present for the field-scoped kinds.
type domainErrorBody struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// mutationResponse confirms a completed mutation. User is omitted for delete.
type mutationResponse struct {
	Message string      `json:"message"`
	User    *types.User `json:"user,omitempty"`
}

// writeDomainError maps a classified domain error onto its fixed status and
// body. The mapping is total: anything unrecognized is an unexpected error
// and leaks no internal detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		api.WriteJSONResponse(w, r, http.StatusNotFound, domainErrorBody{Message: "User not found"})
	case errors.Is(err, types.ErrEmailExists):
		api.WriteJSONResponse(w, r, http.StatusConflict, domainErrorBody{Field: "email", Message: "Email already exists"})
	case errors.Is(err, types.ErrUsernameExists):
		api.WriteJSONResponse(w, r, http.StatusConflict, domainErrorBody{Field: "username", Message: "Username already exists"})
	case errors.Is(err, types.ErrInvalidEmail):
		api.WriteJSONResponse(w, r, http.StatusBadRequest, domainErrorBody{Field: "email", Message: "The provided email is not valid to register"})
	case errors.Is(err, types.ErrInvalidID):
		api.WriteJSONResponse(w, r, http.StatusBadRequest, domainErrorBody{Field: "id", Message: "The provided id is not valid"})
	default:
		api.WriteJSONResponse(w, r, http.StatusInternalServerError, domainErrorBody{Message: "Unexpected error"})
	}
}

// ListUsers godoc
// @Summary      List Users
// @Description  Returns one page of users ordered by creation time.
// @Tags         User
// @Produce      json
// @Param        page query int false "Page number (min 1)" default(1)
// @Param        pageSize query int false "Page size (min 5)" default(25)
// @Success      200 {object} types.PaginatedData[types.User] "User Page"
// @Failure      400 {object} api.Rejection "Invalid Query"
// @Failure      500 {object} domainErrorBody "Internal Server Error"
// @Router       /users [get]
func (h *HandlerImpl) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "ListUsers"))

	var query ListUsersQuery
	if rej := api.DecodeValidQuery(r, &query); rej != nil {
		l.WarnContext(ctx, "List query rejected", slog.String("reason", rej.Error()))
		api.WriteRejection(w, r, rej)
		return
	}

	page, err := h.userService.ListUsers(ctx, query)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list users", slog.Any("error", err))
		writeDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, page)
}

// CreateUser godoc
// @Summary      Create User
// @Description  Registers a new user account.
// @Tags         User
// @Accept       json
// @Produce      json
// @Param        body body CreateUserRequest true "New user"
// @Success      201 {object} mutationResponse "User Created"
// @Failure      400 {object} api.Rejection "Validation Failed"
// @Failure      409 {object} domainErrorBody "Email or Username Conflict"
// @Failure      500 {object} domainErrorBody "Internal Server Error"
// @Router       /users [post]
func (h *HandlerImpl) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "CreateUser"))

	var req CreateUserRequest
	if rej := api.DecodeValidBody(w, r, &req); rej != nil {
		l.WarnContext(ctx, "Create body rejected", slog.String("reason", rej.Error()))
		api.WriteRejection(w, r, rej)
		return
	}

	created, err := h.userService.CreateUser(ctx, req.Input())
	if err != nil {
		l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		writeDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, mutationResponse{Message: "User created", User: created})
}

// UpdateUser godoc
// @Summary      Update User
// @Description  Applies a partial update to an existing user.
// @Tags         User
// @Accept       json
// @Produce      json
// @Param        id path string true "User ID"
// @Param        body body UpdateUserRequest true "Fields to update"
// @Success      200 {object} mutationResponse "User Updated"
// @Failure      400 {object} api.Rejection "Validation Failed"
// @Failure      404 {object} domainErrorBody "User Not Found"
// @Failure      409 {object} domainErrorBody "Email or Username Conflict"
// @Failure      500 {object} domainErrorBody "Internal Server Error"
// @Router       /users/{id} [post]
func (h *HandlerImpl) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "UpdateUser"))

	id := chi.URLParam(r, "id")

	var req UpdateUserRequest
	if rej := api.DecodeValidBody(w, r, &req); rej != nil {
		l.WarnContext(ctx, "Update body rejected", slog.String("reason", rej.Error()))
		api.WriteRejection(w, r, rej)
		return
	}

	updated, err := h.userService.UpdateUser(ctx, id, req.Input())
	if err != nil {
		l.ErrorContext(ctx, "Failed to update user", slog.Any("error", err), slog.String("userID", id))
		writeDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, mutationResponse{Message: "User updated", User: updated})
}

// DeleteUser godoc
// @Summary      Delete User
// @Description  Deletes a user by id. Deleting an absent id succeeds.
// @Tags         User
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} mutationResponse "User Deleted"
// @Failure      400 {object} domainErrorBody "Invalid ID"
// @Failure      500 {object} domainErrorBody "Internal Server Error"
// @Router       /users/{id} [delete]
func (h *HandlerImpl) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "DeleteUser"))

	id := chi.URLParam(r, "id")

	if err := h.userService.DeleteUser(ctx, id); err != nil {
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err), slog.String("userID", id))
		writeDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, mutationResponse{Message: "User deleted"})
}
