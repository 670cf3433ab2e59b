package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentra-auth/sentra/internal/shared"
)

type memoryRepo struct {
	roles       map[string]Role
	elements    map[string]BusinessElement
	rules       map[string]AccessRule
	assignments map[string]Assignment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:       make(map[string]Role),
		elements:    make(map[string]BusinessElement),
		rules:       make(map[string]AccessRule),
		assignments: make(map[string]Assignment),
	}
}

func (m *memoryRepo) ActiveElementByName(ctx context.Context, name string) (*BusinessElement, error) {
	for _, element := range m.elements {
		if element.Name == name && element.IsActive {
			el := element
			return &el, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRepo) ActiveRulesForRoles(ctx context.Context, elementID string, roleIDs []string) ([]AccessRule, error) {
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		if role, ok := m.roles[id]; ok && role.IsActive {
			wanted[id] = true
		}
	}
	var out []AccessRule
	for _, rule := range m.rules {
		if rule.ElementID == elementID && wanted[rule.RoleID] {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *memoryRepo) RoleIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for _, assignment := range m.assignments {
		if assignment.UserID == userID {
			out = append(out, assignment.RoleID)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memoryRepo) GetRole(ctx context.Context, id string) (*Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &role, nil
}

func (m *memoryRepo) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	for _, role := range m.roles {
		if role.Name == name {
			r := role
			return &r, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRepo) CreateRole(ctx context.Context, role *Role) error {
	if _, err := m.FindRoleByName(ctx, role.Name); err == nil {
		return shared.ErrConflict
	}
	m.roles[role.ID] = *role
	return nil
}

func (m *memoryRepo) UpdateRole(ctx context.Context, role *Role) error {
	if _, ok := m.roles[role.ID]; !ok {
		return shared.ErrNotFound
	}
	m.roles[role.ID] = *role
	return nil
}

func (m *memoryRepo) DeleteRole(ctx context.Context, id string) error {
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *memoryRepo) ListElements(ctx context.Context) ([]BusinessElement, error) {
	var out []BusinessElement
	for _, element := range m.elements {
		out = append(out, element)
	}
	return out, nil
}

func (m *memoryRepo) CreateElement(ctx context.Context, element *BusinessElement) error {
	for _, existing := range m.elements {
		if existing.Name == element.Name {
			return shared.ErrConflict
		}
	}
	m.elements[element.ID] = *element
	return nil
}

func (m *memoryRepo) UpdateElement(ctx context.Context, element *BusinessElement) error {
	if _, ok := m.elements[element.ID]; !ok {
		return shared.ErrNotFound
	}
	m.elements[element.ID] = *element
	return nil
}

func (m *memoryRepo) ListRules(ctx context.Context) ([]AccessRule, error) {
	var out []AccessRule
	for _, rule := range m.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (m *memoryRepo) GetRule(ctx context.Context, id string) (*AccessRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &rule, nil
}

func (m *memoryRepo) CreateRule(ctx context.Context, rule *AccessRule) error {
	for _, existing := range m.rules {
		if existing.RoleID == rule.RoleID && existing.ElementID == rule.ElementID {
			return shared.ErrConflict
		}
	}
	m.rules[rule.ID] = *rule
	return nil
}

func (m *memoryRepo) UpdateRule(ctx context.Context, rule *AccessRule) error {
	if _, ok := m.rules[rule.ID]; !ok {
		return shared.ErrNotFound
	}
	m.rules[rule.ID] = *rule
	return nil
}

func (m *memoryRepo) DeleteRule(ctx context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memoryRepo) ListAssignments(ctx context.Context) ([]Assignment, error) {
	var out []Assignment
	for _, assignment := range m.assignments {
		out = append(out, assignment)
	}
	return out, nil
}

func (m *memoryRepo) Assign(ctx context.Context, assignment *Assignment) error {
	for _, existing := range m.assignments {
		if existing.UserID == assignment.UserID && existing.RoleID == assignment.RoleID {
			// Duplicate grants are silently absorbed.
			return nil
		}
	}
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *memoryRepo) Unassign(ctx context.Context, id string) (string, error) {
	assignment, ok := m.assignments[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	delete(m.assignments, id)
	return assignment.UserID, nil
}

func (m *memoryRepo) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	var out []Role
	for _, assignment := range m.assignments {
		if assignment.UserID == userID {
			if role, ok := m.roles[assignment.RoleID]; ok {
				out = append(out, role)
			}
		}
	}
	return out, nil
}

func (m *memoryRepo) EffectiveRulesForUser(ctx context.Context, userID string) ([]EffectiveRule, error) {
	roleIDs, _ := m.RoleIDsForUser(ctx, userID)
	active := make(map[string]bool)
	for _, id := range roleIDs {
		if role, ok := m.roles[id]; ok && role.IsActive {
			active[id] = true
		}
	}
	var out []EffectiveRule
	for _, rule := range m.rules {
		if !active[rule.RoleID] {
			continue
		}
		element, ok := m.elements[rule.ElementID]
		if !ok || !element.IsActive {
			continue
		}
		out = append(out, EffectiveRule{ElementName: element.Name, Rule: rule})
	}
	return out, nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, nil), repo
}

func TestCreateRoleRejectsBlankName(t *testing.T) {
	service, _ := newTestService()
	_, err := service.CreateRole(context.Background(), "  ", "", true)
	require.Error(t, err)
}

func TestCreateRoleConflict(t *testing.T) {
	service, _ := newTestService()
	_, err := service.CreateRole(context.Background(), "admin", "", true)
	require.NoError(t, err)
	_, err = service.CreateRole(context.Background(), "admin", "", true)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAssignIsIdempotent(t *testing.T) {
	service, repo := newTestService()
	role, err := service.CreateRole(context.Background(), "user", "", true)
	require.NoError(t, err)

	_, err = service.Assign(context.Background(), "u1", role.ID, nil)
	require.NoError(t, err)
	_, err = service.Assign(context.Background(), "u1", role.ID, nil)
	require.NoError(t, err)

	require.Len(t, repo.assignments, 1)
}

func TestAssignByNameMissingRole(t *testing.T) {
	service, _ := newTestService()
	err := service.AssignByName(context.Background(), "u1", "ghost")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUnassignRemovesGrant(t *testing.T) {
	service, _ := newTestService()
	role, err := service.CreateRole(context.Background(), "user", "", true)
	require.NoError(t, err)
	assignment, err := service.Assign(context.Background(), "u1", role.ID, nil)
	require.NoError(t, err)

	require.NoError(t, service.Unassign(context.Background(), assignment.ID))
	roles, err := service.RolesForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestCreateRuleUniquePerPair(t *testing.T) {
	service, _ := newTestService()
	role, err := service.CreateRole(context.Background(), "user", "", true)
	require.NoError(t, err)
	element, err := service.CreateElement(context.Background(), "orders", "", true, true)
	require.NoError(t, err)

	_, err = service.CreateRule(context.Background(), RuleInput{RoleID: role.ID, ElementID: element.ID, Read: true})
	require.NoError(t, err)
	_, err = service.CreateRule(context.Background(), RuleInput{RoleID: role.ID, ElementID: element.ID, ReadAll: true})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestPermissionMatrixFoldsRules(t *testing.T) {
	service, _ := newTestService()
	roleA, err := service.CreateRole(context.Background(), "viewer", "", true)
	require.NoError(t, err)
	roleB, err := service.CreateRole(context.Background(), "editor", "", true)
	require.NoError(t, err)
	element, err := service.CreateElement(context.Background(), "orders", "", true, true)
	require.NoError(t, err)

	_, err = service.CreateRule(context.Background(), RuleInput{RoleID: roleA.ID, ElementID: element.ID, Read: true})
	require.NoError(t, err)
	_, err = service.CreateRule(context.Background(), RuleInput{RoleID: roleB.ID, ElementID: element.ID, Update: true, UpdateAll: true})
	require.NoError(t, err)

	_, err = service.Assign(context.Background(), "u1", roleA.ID, nil)
	require.NoError(t, err)
	_, err = service.Assign(context.Background(), "u1", roleB.ID, nil)
	require.NoError(t, err)

	matrix, err := service.PermissionMatrix(context.Background(), "u1")
	require.NoError(t, err)
	perms := matrix["orders"]
	require.True(t, perms.Read)
	require.True(t, perms.Update)
	require.True(t, perms.UpdateAll)
	require.False(t, perms.Delete)
}

func TestPermissionMatrixSkipsInactiveRoles(t *testing.T) {
	service, _ := newTestService()
	role, err := service.CreateRole(context.Background(), "ghost", "", false)
	require.NoError(t, err)
	element, err := service.CreateElement(context.Background(), "orders", "", true, true)
	require.NoError(t, err)
	_, err = service.CreateRule(context.Background(), RuleInput{RoleID: role.ID, ElementID: element.ID, ReadAll: true})
	require.NoError(t, err)
	_, err = service.Assign(context.Background(), "u1", role.ID, nil)
	require.NoError(t, err)

	matrix, err := service.PermissionMatrix(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, matrix)
}
