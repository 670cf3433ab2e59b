package users

import (
	"strings"
	"time"

	"github.com/sentra-auth/sentra/internal/shared"
)

// User represents a user account.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Patronymic   string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins last name, first name and patronymic when present.
func (u *User) FullName() string {
	parts := []string{u.LastName, u.FirstName}
	if u.Patronymic != "" {
		parts = append(parts, u.Patronymic)
	}
	return strings.Join(parts, " ")
}

// Principal converts the account into the authorization view of the actor.
func (u *User) Principal() shared.Principal {
	return shared.Principal{
		ID:          u.ID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
	}
}
