package user

import (
	"time"

	"github.com/example/ec-order-sync/internal/model"
)

// RegisterRequest always creates a user with the user role. Any role sent by
// the client is ignored.
type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UpdateUserRequest changes only the fields that are set.
type UpdateUserRequest struct {
	Name *string `json:"name,omitempty"`
	Role *string `json:"role,omitempty"`
}

// Actor is the verified caller of an operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}
