// Package user is the identity service. It owns user records and announces
// every change through the outbox, in the same transaction as the change.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/ec-order-sync/internal/apperror"
	"github.com/example/ec-order-sync/internal/auth"
	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/identity"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxNameLength = 64

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNameTaken        = errors.New("name already taken")
	ErrInvalidName      = errors.New("name is required")
	ErrInvalidRole      = errors.New("role must be user or admin")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrNothingToUpdate  = errors.New("nothing to update")
	ErrNotAllowed       = errors.New("not allowed")
	ErrRoleChangeDenied = errors.New("only admins can change roles")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) bool
}

type TokenIssuer interface {
	GenerateAccessToken(userID, name, role string) (string, time.Time, error)
	ValidateAccessToken(token string) (*auth.Claims, error)
}

type Service struct {
	users  store.UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	topics config.Topics
	logger *zap.Logger
	now    func() time.Time
}

func NewService(users store.UserStore, hasher PasswordHasher, tokens TokenIssuer, topics config.Topics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		topics: topics,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an ordinary user. Admins come from EnsureAdmin or from a
// role change made by another admin.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	return s.create(ctx, req.Name, req.Password, model.RoleUser)
}

// EnsureAdmin creates the named admin unless a user with that name already
// exists, in which case the existing record is returned unchanged.
func (s *Service) EnsureAdmin(ctx context.Context, name, password string) (*model.User, error) {
	existing, err := s.users.GetUserByName(ctx, strings.TrimSpace(name))
	if err == nil {
		if existing.Role != model.RoleAdmin {
			s.logger.Warn("bootstrap admin name belongs to a non-admin user", zap.String("user_id", existing.ID))
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Unexpected(err, "load user")
	}
	return s.create(ctx, name, password, model.RoleAdmin)
}

func (s *Service) create(ctx context.Context, rawName, password, role string) (*model.User, error) {
	name, err := normalizeName(rawName)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, apperror.Wrap(apperror.KindBusinessRule, err, "%s", err.Error())
	}
	if err != nil {
		return nil, apperror.Unexpected(err, "hash password")
	}

	now := s.now()
	u := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.users.WithinTx(ctx, func(ctx context.Context, tx store.UserTx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}
		return tx.Enqueue(ctx, s.topics.UserCreated, u.ID, model.NewUserFact(u))
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperror.Wrap(apperror.KindConflict, ErrNameTaken, "name %q is already taken", name)
	}
	if err != nil {
		return nil, apperror.Unexpected(err, "register user")
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", u.Role))
	return u, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Token, error) {
	u, err := s.users.GetUserByName(ctx, strings.TrimSpace(req.Name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Wrap(apperror.KindNotFound, ErrUserNotFound, "user not found")
	}
	if err != nil {
		return nil, apperror.Unexpected(err, "load user")
	}
	if !s.hasher.Check(req.Password, u.PasswordHash) {
		s.logger.Warn("login rejected", zap.String("user_id", u.ID))
		return nil, apperror.Wrap(apperror.KindForbidden, ErrInvalidPassword, "invalid password")
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(u.ID, u.Name, u.Role)
	if err != nil {
		return nil, apperror.Unexpected(err, "issue token")
	}

	s.logger.Info("user logged in", zap.String("user_id", u.ID))
	return &Token{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt}, nil
}

// Verify checks the token and that its user still exists. Name and role come
// from the current record, not from the token.
func (s *Service) Verify(ctx context.Context, token string) (identity.Verification, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return identity.Verification{}, nil
	}
	u, err := s.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return identity.Verification{}, nil
	}
	if err != nil {
		return identity.Verification{}, apperror.Unexpected(err, "load user")
	}
	return identity.Verification{Valid: true, UserID: u.ID, Role: u.Role, Name: u.Name}, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Wrap(apperror.KindNotFound, ErrUserNotFound, "user not found")
	}
	if err != nil {
		return nil, apperror.Unexpected(err, "load user")
	}
	return u, nil
}

// UpdateUser applies the set fields of req. Users may edit themselves;
// admins may edit anyone and are the only ones who can change a role.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, id string, req UpdateUserRequest) (*model.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return nil, apperror.Wrap(apperror.KindForbidden, ErrNotAllowed, "cannot update another user")
	}
	if req.Role != nil && !actor.IsAdmin() {
		return nil, apperror.Wrap(apperror.KindForbidden, ErrRoleChangeDenied, "only admins can change roles")
	}
	if req.Name == nil && req.Role == nil {
		return nil, apperror.Wrap(apperror.KindBusinessRule, ErrNothingToUpdate, "nothing to update")
	}

	var name, role string
	var err error
	if req.Name != nil {
		if name, err = normalizeName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Role != nil {
		role = *req.Role
		if err := validateRole(role); err != nil {
			return nil, err
		}
	}

	var updated *model.User
	err = s.users.WithinTx(ctx, func(ctx context.Context, tx store.UserTx) error {
		u, err := tx.LockUser(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			u.Name = name
		}
		if req.Role != nil {
			u.Role = role
		}
		u.UpdatedAt = s.now()

		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		updated = u
		return tx.Enqueue(ctx, s.topics.UserUpdated, u.ID, model.NewUserFact(u))
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperror.Wrap(apperror.KindNotFound, ErrUserNotFound, "user not found")
	case errors.Is(err, store.ErrDuplicate):
		return nil, apperror.Wrap(apperror.KindConflict, ErrNameTaken, "name %q is already taken", name)
	case err != nil:
		return nil, apperror.Unexpected(err, "update user")
	}

	s.logger.Info("user updated",
		zap.String("user_id", updated.ID),
		zap.String("by", actor.UserID),
		zap.Bool("role_changed", req.Role != nil),
	)
	return updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin() {
		return apperror.Wrap(apperror.KindForbidden, ErrNotAllowed, "only admins can delete users")
	}

	err := s.users.WithinTx(ctx, func(ctx context.Context, tx store.UserTx) error {
		if err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		return tx.Enqueue(ctx, s.topics.UserDeleted, id, model.UserDeletedFact{ID: id})
	})
	if errors.Is(err, store.ErrNotFound) {
		return apperror.Wrap(apperror.KindNotFound, ErrUserNotFound, "user not found")
	}
	if err != nil {
		return apperror.Unexpected(err, "delete user")
	}

	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("by", actor.UserID))
	return nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > maxNameLength {
		return "", apperror.Wrap(apperror.KindBusinessRule, ErrInvalidName,
			"name must be between 1 and %d characters", maxNameLength)
	}
	return name, nil
}

func validateRole(role string) error {
	if role != model.RoleUser && role != model.RoleAdmin {
		return apperror.Wrap(apperror.KindBusinessRule, ErrInvalidRole, "role must be %q or %q", model.RoleUser, model.RoleAdmin)
	}
	return nil
}
