package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"quota-platform/internal/middleware"
	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

type UserHandler struct {
	userService *services.UserService
	logger      zerolog.Logger
}

func NewUserHandler(userService *services.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to load user")
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	currentUserID, _ := middleware.GetUserID(r)
	userRole, _ := middleware.GetUserRole(r)

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to load user")
		return
	}

	// Agents may also view their own children.
	visible := userRole == models.RoleSuperadmin ||
		currentUserID == userID ||
		(user.ParentID != nil && *user.ParentID == currentUserID)
	if !visible {
		respondWithError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}

	respondWithJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	children, err := h.userService.ListChildren(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to list children")
		return
	}
	respondWithJSON(w, http.StatusOK, children)
}

func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.userService.Activate)
}

func (h *UserHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.userService.Disable)
}

func (h *UserHandler) setStatus(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, userID, adminID int64) (*models.User, error)) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	adminID, _ := middleware.GetUserID(r)

	user, err := apply(r.Context(), userID, adminID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Failed to update user status")
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}
