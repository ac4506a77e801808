package api

import (
	"net/http"
	"time"

	"github.com/example/ec-order-sync/internal/api/middleware"
	"github.com/example/ec-order-sync/internal/domain/user"
	"github.com/example/ec-order-sync/internal/identity"
	"github.com/example/ec-order-sync/internal/model"
	"go.uber.org/zap"
)

// AuthHandlers handles the identity service's HTTP requests
type AuthHandlers struct {
	users  *user.Service
	logger *zap.Logger
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(users *user.Service, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{
		users:  users,
		logger: logger,
	}
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

// Register handles user registration
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toUserResponse(u))
}

// Login exchanges credentials for an access token
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req user.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.users.Login(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token.AccessToken,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, token)
}

// Verify answers the other services' token checks. It always returns 200;
// anything wrong with the token is reported as valid=false.
func (h *AuthHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		respondJSON(w, http.StatusOK, identity.Verification{})
		return
	}

	v, err := h.users.Verify(r.Context(), req.Token)
	if err != nil {
		h.logger.Warn("verify failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
		respondJSON(w, http.StatusOK, identity.Verification{})
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *AuthHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/users/")

	var req user.UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.users.UpdateUser(r.Context(), actorFrom(r), id, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *AuthHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/users/")

	if err := h.users.DeleteUser(r.Context(), actorFrom(r), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorFrom(r *http.Request) user.Actor {
	v, _ := middleware.GetIdentity(r.Context())
	return user.Actor{UserID: v.UserID, Role: v.Role}
}
