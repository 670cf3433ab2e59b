package rbac

import "time"

// Action is one of the four verbs the evaluator understands.
type Action string

// Supported actions.
const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Role represents a named, independently activatable permission grouping.
// Inactive roles grant nothing even while assigned.
type Role struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
}

// BusinessElement is a named protected resource. Inactive elements are
// invisible to authorization and evaluate to deny.
type BusinessElement struct {
	ID          string
	Name        string
	Description string
	HasOwner    bool
	IsActive    bool
}

// AccessRule is one row of the permission matrix: at most one per
// (role, element) pair.
type AccessRule struct {
	ID        string
	RoleID    string
	ElementID string
	Read      bool
	ReadAll   bool
	Create    bool
	Update    bool
	UpdateAll bool
	Delete    bool
	DeleteAll bool
}

// Assignment links a user to a role with audit metadata. AssignedBy is nil
// when the assigner was since removed.
type Assignment struct {
	ID         string
	UserID     string
	RoleID     string
	AssignedAt time.Time
	AssignedBy *string
}

// Ownable is the explicit contract a resource instance declares to take part
// in row-level ownership checks.
type Ownable interface {
	OwnerID() string
}

// ElementPermissions is the OR-fold of every rule a user's active roles hold
// on one element.
type ElementPermissions struct {
	Read      bool `json:"read"`
	ReadAll   bool `json:"read_all"`
	Create    bool `json:"create"`
	Update    bool `json:"update"`
	UpdateAll bool `json:"update_all"`
	Delete    bool `json:"delete"`
	DeleteAll bool `json:"delete_all"`
}

// Matrix maps element names to folded permissions.
type Matrix map[string]ElementPermissions
