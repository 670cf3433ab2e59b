package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultRoleName is assigned to every freshly registered account.
const DefaultRoleName = "user"

// RoleAssigner grants a named role to a user. Implemented by the rbac service.
type RoleAssigner interface {
	AssignByName(ctx context.Context, userID, roleName string) error
}

// SessionRevoker deactivates every live session owned by a user.
type SessionRevoker interface {
	DeactivateAllForUser(ctx context.Context, userID string) error
}

// Service handles account business logic.
type Service struct {
	repo     Repository
	roles    RoleAssigner
	sessions SessionRevoker
}

// NewService builds a Service instance.
func NewService(repo Repository, roles RoleAssigner, sessions SessionRevoker) *Service {
	return &Service{repo: repo, roles: roles, sessions: sessions}
}

// RegisterInput carries validated registration fields.
type RegisterInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Patronymic string
}

// Register creates an active, non-superuser account and grants the default
// role. A missing default role does not fail registration.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Patronymic:   strings.TrimSpace(input.Patronymic),
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	if s.roles != nil {
		_ = s.roles.AssignByName(ctx, user.ID, DefaultRoleName)
	}
	return user, nil
}

// Profile returns the account owned by the given id.
func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// ProfileInput carries the profile fields a user may change.
type ProfileInput struct {
	FirstName  string
	LastName   string
	Patronymic string
}

// UpdateProfile stores the new profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id string, input ProfileInput) (*User, error) {
	return s.repo.UpdateProfile(ctx, id,
		strings.TrimSpace(input.FirstName),
		strings.TrimSpace(input.LastName),
		strings.TrimSpace(input.Patronymic),
	)
}

// DeleteAccount flips the active flag and revokes every open session. The
// account remains visible to the authorization subsystem.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	if s.sessions != nil {
		return s.sessions.DeactivateAllForUser(ctx, id)
	}
	return nil
}
