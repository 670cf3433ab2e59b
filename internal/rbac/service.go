package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Service orchestrates management of roles, elements, rules and assignments,
// and serves the permission matrix introspection.
type Service struct {
	repo  Repository
	cache *PermissionsCache
}

// NewService constructs a Service.
func NewService(repo Repository, cache *PermissionsCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, isActive bool) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rbac: role name required")
	}
	role := &Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    isActive,
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole updates an existing role and orphans cached snapshots, since an
// active-flag flip changes effective permissions for every holder.
func (s *Service) UpdateRole(ctx context.Context, id, name, description string, isActive bool) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rbac: role name required")
	}
	role := &Role{ID: id, Name: name, Description: strings.TrimSpace(description), IsActive: isActive}
	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return nil, err
	}
	_ = s.cache.InvalidateAll(ctx)
	return role, nil
}

// DeleteRole removes a role by id.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	return s.cache.InvalidateAll(ctx)
}

// ListElements returns all protected resources.
func (s *Service) ListElements(ctx context.Context) ([]BusinessElement, error) {
	return s.repo.ListElements(ctx)
}

// CreateElement registers a new protected resource.
func (s *Service) CreateElement(ctx context.Context, name, description string, hasOwner, isActive bool) (*BusinessElement, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rbac: element name required")
	}
	element := &BusinessElement{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		HasOwner:    hasOwner,
		IsActive:    isActive,
	}
	if err := s.repo.CreateElement(ctx, element); err != nil {
		return nil, err
	}
	return element, nil
}

// UpdateElement updates a protected resource.
func (s *Service) UpdateElement(ctx context.Context, id, name, description string, hasOwner, isActive bool) (*BusinessElement, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rbac: element name required")
	}
	element := &BusinessElement{ID: id, Name: name, Description: strings.TrimSpace(description), HasOwner: hasOwner, IsActive: isActive}
	if err := s.repo.UpdateElement(ctx, element); err != nil {
		return nil, err
	}
	_ = s.cache.InvalidateAll(ctx)
	return element, nil
}

// RuleInput carries the fields of one permission matrix row.
type RuleInput struct {
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

// ListRules returns the permission matrix.
func (s *Service) ListRules(ctx context.Context) ([]AccessRule, error) {
	return s.repo.ListRules(ctx)
}

// CreateRule inserts a matrix row; the (role, element) pair must be unused.
func (s *Service) CreateRule(ctx context.Context, input RuleInput) (*AccessRule, error) {
	if input.RoleID == "" || input.ElementID == "" {
		return nil, errors.New("rbac: role and element required")
	}
	rule := &AccessRule{
		ID:        uuid.NewString(),
		RoleID:    input.RoleID,
		ElementID: input.ElementID,
		Read:      input.Read,
		ReadAll:   input.ReadAll,
		Create:    input.Create,
		Update:    input.Update,
		UpdateAll: input.UpdateAll,
		Delete:    input.Delete,
		DeleteAll: input.DeleteAll,
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	_ = s.cache.InvalidateAll(ctx)
	return rule, nil
}

// UpdateRule replaces the facets of an existing matrix row.
func (s *Service) UpdateRule(ctx context.Context, id string, input RuleInput) (*AccessRule, error) {
	existing, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule := &AccessRule{
		ID:        existing.ID,
		RoleID:    existing.RoleID,
		ElementID: existing.ElementID,
		Read:      input.Read,
		ReadAll:   input.ReadAll,
		Create:    input.Create,
		Update:    input.Update,
		UpdateAll: input.UpdateAll,
		Delete:    input.Delete,
		DeleteAll: input.DeleteAll,
	}
	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	_ = s.cache.InvalidateAll(ctx)
	return rule, nil
}

// DeleteRule removes a matrix row.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	return s.cache.InvalidateAll(ctx)
}

// ListAssignments returns the role assignment ledger.
func (s *Service) ListAssignments(ctx context.Context) ([]Assignment, error) {
	return s.repo.ListAssignments(ctx)
}

// Assign grants a role to a user. Assigning an already-held role is a no-op.
func (s *Service) Assign(ctx context.Context, userID, roleID string, assignedBy *string) (*Assignment, error) {
	if userID == "" || roleID == "" {
		return nil, errors.New("rbac: user and role required")
	}
	assignment := &Assignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
	}
	if err := s.repo.Assign(ctx, assignment); err != nil {
		return nil, err
	}
	_ = s.cache.InvalidateUser(ctx, userID)
	return assignment, nil
}

// AssignByName grants a role looked up by its unique name. A missing role is
// reported as ErrNotFound.
func (s *Service) AssignByName(ctx context.Context, userID, roleName string) error {
	role, err := s.repo.FindRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = s.Assign(ctx, userID, role.ID, nil)
	return err
}

// Unassign removes a ledger row by id.
func (s *Service) Unassign(ctx context.Context, id string) error {
	userID, err := s.repo.Unassign(ctx, id)
	if err != nil {
		return err
	}
	return s.cache.InvalidateUser(ctx, userID)
}

// RolesForUser lists the roles a user holds, active or not.
func (s *Service) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	return s.repo.RolesForUser(ctx, userID)
}

// PermissionMatrix folds a user's effective rules per element. Superusers are
// served from the matrix like everyone else; their bypass lives in the
// evaluator, not in introspection.
func (s *Service) PermissionMatrix(ctx context.Context, userID string) (Matrix, error) {
	return s.cache.Fetch(ctx, userID, func(ctx context.Context) (Matrix, error) {
		effective, err := s.repo.EffectiveRulesForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		matrix := make(Matrix, len(effective))
		for _, er := range effective {
			perms := matrix[er.ElementName]
			perms.Read = perms.Read || er.Rule.Read
			perms.ReadAll = perms.ReadAll || er.Rule.ReadAll
			perms.Create = perms.Create || er.Rule.Create
			perms.Update = perms.Update || er.Rule.Update
			perms.UpdateAll = perms.UpdateAll || er.Rule.UpdateAll
			perms.Delete = perms.Delete || er.Rule.Delete
			perms.DeleteAll = perms.DeleteAll || er.Rule.DeleteAll
			matrix[er.ElementName] = perms
		}
		return matrix, nil
	})
}
