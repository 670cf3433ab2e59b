package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentra-auth/sentra/internal/shared"
)

type memoryRuleSource struct {
	elements    map[string]BusinessElement
	userRoles   map[string][]string
	activeRoles map[string]bool
	rules       []AccessRule
	failWith    error
}

func newMemoryRuleSource() *memoryRuleSource {
	return &memoryRuleSource{
		elements:    make(map[string]BusinessElement),
		userRoles:   make(map[string][]string),
		activeRoles: make(map[string]bool),
	}
}

func (m *memoryRuleSource) ActiveElementByName(ctx context.Context, name string) (*BusinessElement, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	element, ok := m.elements[name]
	if !ok || !element.IsActive {
		return nil, shared.ErrNotFound
	}
	return &element, nil
}

func (m *memoryRuleSource) ActiveRulesForRoles(ctx context.Context, elementID string, roleIDs []string) ([]AccessRule, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		if m.activeRoles[id] {
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

func (m *memoryRuleSource) RoleIDsForUser(ctx context.Context, userID string) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.userRoles[userID], nil
}

func (m *memoryRuleSource) addElement(id, name string, active bool) {
	m.elements[name] = BusinessElement{ID: id, Name: name, IsActive: active}
}

func (m *memoryRuleSource) addRole(id string, active bool) {
	m.activeRoles[id] = active
}

func (m *memoryRuleSource) grant(userID, roleID string) {
	m.userRoles[userID] = append(m.userRoles[userID], roleID)
}

func fixtureSource() *memoryRuleSource {
	source := newMemoryRuleSource()
	source.addElement("el-orders", "orders", true)
	source.addElement("el-archive", "archive", false)
	source.addRole("role-user", true)
	source.addRole("role-staff", true)
	source.addRole("role-retired", false)
	return source
}

func principal(id string, superuser bool) shared.Principal {
	return shared.Principal{ID: id, Email: id + "@example.com", IsActive: true, IsSuperuser: superuser}
}

func TestEvaluateSuperuserBypassesMatrix(t *testing.T) {
	source := fixtureSource()
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.Evaluate(context.Background(), principal("root", true), "orders", ActionDelete, nil)
	require.NoError(t, err)
	require.True(t, allowed)

	// Even resources nobody registered.
	allowed, err = evaluator.Evaluate(context.Background(), principal("root", true), "no-such-thing", ActionUpdate, nil)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestEvaluateUnknownResourceDenies(t *testing.T) {
	source := fixtureSource()
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "no-such-thing", ActionRead, nil)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestEvaluateInactiveElementDenies(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.rules = append(source.rules, AccessRule{RoleID: "role-user", ElementID: "el-archive", ReadAll: true})
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "archive", ActionRead, nil)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestEvaluateNoRolesDenies(t *testing.T) {
	source := fixtureSource()
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.Evaluate(context.Background(), principal("nobody", false), "orders", ActionRead, nil)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestEvaluateInactiveRoleGrantsNothing(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-retired")
	source.rules = append(source.rules, AccessRule{RoleID: "role-retired", ElementID: "el-orders", ReadAll: true, DeleteAll: true})
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionRead, nil)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestEvaluateAllFacetShortCircuits(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.rules = append(source.rules, AccessRule{RoleID: "role-user", ElementID: "el-orders", ReadAll: true})
	evaluator := NewEvaluator(source)

	otherOwner := "someone-else"
	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionRead, &otherOwner)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestEvaluateCreateIgnoresOwnership(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.rules = append(source.rules, AccessRule{RoleID: "role-user", ElementID: "el-orders", Create: true})
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionCreate, nil)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestEvaluateUpdateRequiresOwnership(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.rules = append(source.rules, AccessRule{RoleID: "role-user", ElementID: "el-orders", Update: true})
	evaluator := NewEvaluator(source)

	own := "u1"
	other := "u2"

	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionUpdate, &own)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionUpdate, &other)
	require.NoError(t, err)
	require.False(t, allowed)

	// Plain update with no object at all cannot prove ownership.
	allowed, err = evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionUpdate, nil)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestEvaluateOwnershipComparisonIsNormalized(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.rules = append(source.rules, AccessRule{RoleID: "role-user", ElementID: "el-orders", Delete: true})
	evaluator := NewEvaluator(source)

	owner := "  U1 "
	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionDelete, &owner)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestEvaluatePlainReadAllowsListing(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.rules = append(source.rules, AccessRule{RoleID: "role-user", ElementID: "el-orders", Read: true})
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionRead, nil)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestEvaluateFoldsAcrossRoles(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.grant("u1", "role-staff")
	source.rules = append(source.rules,
		AccessRule{RoleID: "role-user", ElementID: "el-orders", Read: true},
		AccessRule{RoleID: "role-staff", ElementID: "el-orders", UpdateAll: true},
	)
	evaluator := NewEvaluator(source)

	other := "u2"
	allowed, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionUpdate, &other)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestEvaluateStoreErrorPropagates(t *testing.T) {
	source := fixtureSource()
	source.failWith = errors.New("postgres down")
	evaluator := NewEvaluator(source)

	_, err := evaluator.Evaluate(context.Background(), principal("u1", false), "orders", ActionRead, nil)
	require.Error(t, err)
}

type ownedOrder struct{ owner string }

func (o ownedOrder) OwnerID() string { return o.owner }

func TestEvaluateOwned(t *testing.T) {
	source := fixtureSource()
	source.grant("u1", "role-user")
	source.rules = append(source.rules, AccessRule{RoleID: "role-user", ElementID: "el-orders", Delete: true})
	evaluator := NewEvaluator(source)

	allowed, err := evaluator.EvaluateOwned(context.Background(), principal("u1", false), "orders", ActionDelete, ownedOrder{owner: "u1"})
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = evaluator.EvaluateOwned(context.Background(), principal("u1", false), "orders", ActionDelete, ownedOrder{owner: "u9"})
	require.NoError(t, err)
	require.False(t, allowed)
}
