package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

type AuthHandler struct {
	userService *services.UserService
	authService *services.AuthService
	logger      zerolog.Logger
}

func NewAuthHandler(userService *services.UserService, authService *services.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		authService: authService,
		logger:      logger,
	}
}

// Register creates a pending account. No token is issued until an
// administrator activates it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.Register(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Registration failed")
		return
	}

	respondWithJSON(w, http.StatusCreated, models.AuthResponse{User: user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.Authenticate(r.Context(), &req)
	if errors.Is(err, services.ErrInvalidCredentials) {
		h.logger.Warn().Str("email", req.Email).Msg("Login failed")
		respondWithError(w, http.StatusUnauthorized, "authentication_failed", "Invalid email or password")
		return
	}
	if err != nil {
		respondWithServiceError(w, h.logger, err, "Login failed")
		return
	}

	h.respondWithTokens(w, http.StatusOK, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID, err := h.authService.RefreshUserID(req.RefreshToken)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired refresh token")
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired refresh token")
		return
	}
	if user.Status != models.StatusActive {
		respondWithError(w, http.StatusForbidden, "forbidden", "Account is not active")
		return
	}

	h.respondWithTokens(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, code int, user *models.User) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "token_generation_failed", "Failed to generate token")
		return
	}
	refresh, err := h.authService.GenerateRefreshToken(user.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "token_generation_failed", "Failed to generate token")
		return
	}

	respondWithJSON(w, code, models.AuthResponse{
		User:         user,
		Token:        token,
		RefreshToken: refresh,
	})
}
