package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-auth/sentra/internal/shared"
)

// RuleSource is the read-only slice of the store the evaluator consults.
type RuleSource interface {
	ActiveElementByName(ctx context.Context, name string) (*BusinessElement, error)
	ActiveRulesForRoles(ctx context.Context, elementID string, roleIDs []string) ([]AccessRule, error)
	RoleIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// EffectiveRule pairs an element name with one matching rule, used by the
// permission matrix introspection.
type EffectiveRule struct {
	ElementName string
	Rule        AccessRule
}

// Repository defines persistence for roles, elements, rules and assignments.
type Repository interface {
	RuleSource

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (*Role, error)
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	CreateRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id string) error

	ListElements(ctx context.Context) ([]BusinessElement, error)
	CreateElement(ctx context.Context, element *BusinessElement) error
	UpdateElement(ctx context.Context, element *BusinessElement) error

	ListRules(ctx context.Context) ([]AccessRule, error)
	GetRule(ctx context.Context, id string) (*AccessRule, error)
	CreateRule(ctx context.Context, rule *AccessRule) error
	UpdateRule(ctx context.Context, rule *AccessRule) error
	DeleteRule(ctx context.Context, id string) error

	ListAssignments(ctx context.Context) ([]Assignment, error)
	Assign(ctx context.Context, assignment *Assignment) error
	Unassign(ctx context.Context, id string) (userID string, err error)
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	EffectiveRulesForUser(ctx context.Context, userID string) ([]EffectiveRule, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const ruleColumns = `id, role_id, element_id, read_permission, read_all_permission, create_permission,
	update_permission, update_all_permission, delete_permission, delete_all_permission`

// ActiveElementByName resolves an element name to its active row.
func (r *PGRepository) ActiveElementByName(ctx context.Context, name string) (*BusinessElement, error) {
	const query = `
		SELECT id, name, COALESCE(description, ''), has_owner_field, is_active
		FROM business_elements WHERE name = $1 AND is_active
	`
	return scanElement(r.pool.QueryRow(ctx, query, name))
}

// ActiveRulesForRoles returns the matrix rows for the element whose role is
// both in the given set and still active.
func (r *PGRepository) ActiveRulesForRoles(ctx context.Context, elementID string, roleIDs []string) ([]AccessRule, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	const query = `
		SELECT ar.id, ar.role_id, ar.element_id, ar.read_permission, ar.read_all_permission,
			ar.create_permission, ar.update_permission, ar.update_all_permission,
			ar.delete_permission, ar.delete_all_permission
		FROM access_roles_rules ar
		JOIN roles r ON r.id = ar.role_id
		WHERE ar.element_id = $1 AND ar.role_id = ANY($2) AND r.is_active
	`
	rows, err := r.pool.Query(ctx, query, elementID, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// RoleIDsForUser returns the assigned role ids, active or not. Activity is
// filtered at evaluation time, not here.
func (r *PGRepository) RoleIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(description, ''), is_active FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *PGRepository) GetRole(ctx context.Context, id string) (*Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), is_active FROM roles WHERE id = $1`, id))
}

// FindRoleByName fetches a role by its unique name.
func (r *PGRepository) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), is_active FROM roles WHERE name = $1`, name))
}

// CreateRole inserts a new role. Duplicate name maps to ErrConflict.
func (r *PGRepository) CreateRole(ctx context.Context, role *Role) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO roles (id, name, description, is_active) VALUES ($1, $2, NULLIF($3, ''), $4)`,
		role.ID, role.Name, role.Description, role.IsActive)
	return mapUniqueViolation(err)
}

// UpdateRole stores name, description and the active flag.
func (r *PGRepository) UpdateRole(ctx context.Context, role *Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET name = $2, description = NULLIF($3, ''), is_active = $4 WHERE id = $1`,
		role.ID, role.Name, role.Description, role.IsActive)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteRole removes a role; its rules and assignments cascade.
func (r *PGRepository) DeleteRole(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListElements returns all elements ordered by name.
func (r *PGRepository) ListElements(ctx context.Context) ([]BusinessElement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, COALESCE(description, ''), has_owner_field, is_active FROM business_elements ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var elements []BusinessElement
	for rows.Next() {
		var element BusinessElement
		if err := rows.Scan(&element.ID, &element.Name, &element.Description, &element.HasOwner, &element.IsActive); err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	return elements, rows.Err()
}

// CreateElement inserts a new protected resource.
func (r *PGRepository) CreateElement(ctx context.Context, element *BusinessElement) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO business_elements (id, name, description, has_owner_field, is_active) VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		element.ID, element.Name, element.Description, element.HasOwner, element.IsActive)
	return mapUniqueViolation(err)
}

// UpdateElement stores the mutable element fields.
func (r *PGRepository) UpdateElement(ctx context.Context, element *BusinessElement) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE business_elements SET name = $2, description = NULLIF($3, ''), has_owner_field = $4, is_active = $5 WHERE id = $1`,
		element.ID, element.Name, element.Description, element.HasOwner, element.IsActive)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListRules returns the whole permission matrix.
func (r *PGRepository) ListRules(ctx context.Context) ([]AccessRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM access_roles_rules ORDER BY role_id, element_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// GetRule fetches a rule by id.
func (r *PGRepository) GetRule(ctx context.Context, id string) (*AccessRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM access_roles_rules WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// CreateRule inserts a matrix row. A second rule for the same (role, element)
// pair maps to ErrConflict.
func (r *PGRepository) CreateRule(ctx context.Context, rule *AccessRule) error {
	const query = `
		INSERT INTO access_roles_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		rule.ID, rule.RoleID, rule.ElementID,
		rule.Read, rule.ReadAll, rule.Create,
		rule.Update, rule.UpdateAll, rule.Delete, rule.DeleteAll)
	return mapUniqueViolation(err)
}

// UpdateRule stores the seven permission facets.
func (r *PGRepository) UpdateRule(ctx context.Context, rule *AccessRule) error {
	const query = `
		UPDATE access_roles_rules
		SET read_permission = $2, read_all_permission = $3, create_permission = $4,
			update_permission = $5, update_all_permission = $6,
			delete_permission = $7, delete_all_permission = $8
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		rule.ID, rule.Read, rule.ReadAll, rule.Create,
		rule.Update, rule.UpdateAll, rule.Delete, rule.DeleteAll)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteRule removes a matrix row.
func (r *PGRepository) DeleteRule(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_roles_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListAssignments returns the whole ledger.
func (r *PGRepository) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, role_id, assigned_at, assigned_by FROM user_roles ORDER BY assigned_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		var assignment Assignment
		if err := rows.Scan(&assignment.ID, &assignment.UserID, &assignment.RoleID, &assignment.AssignedAt, &assignment.AssignedBy); err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

// Assign records a (user, role) pair. Re-assigning an existing pair is
// silently absorbed; the original row and its audit fields stay untouched.
func (r *PGRepository) Assign(ctx context.Context, assignment *Assignment) error {
	const query = `
		INSERT INTO user_roles (id, user_id, role_id, assigned_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, assignment.ID, assignment.UserID, assignment.RoleID, assignment.AssignedBy)
	return err
}

// Unassign removes a ledger row. Role and user records are untouched.
func (r *PGRepository) Unassign(ctx context.Context, id string) (string, error) {
	var userID string
	err := r.pool.QueryRow(ctx, `DELETE FROM user_roles WHERE id = $1 RETURNING user_id`, id).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

// RolesForUser returns the assigned roles with their metadata.
func (r *PGRepository) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	const query = `
		SELECT r.id, r.name, COALESCE(r.description, ''), r.is_active
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// EffectiveRulesForUser returns every rule reachable through the user's
// active roles on active elements, keyed by element name.
func (r *PGRepository) EffectiveRulesForUser(ctx context.Context, userID string) ([]EffectiveRule, error) {
	const query = `
		SELECT e.name, ar.id, ar.role_id, ar.element_id, ar.read_permission, ar.read_all_permission,
			ar.create_permission, ar.update_permission, ar.update_all_permission,
			ar.delete_permission, ar.delete_all_permission
		FROM access_roles_rules ar
		JOIN user_roles ur ON ur.role_id = ar.role_id
		JOIN roles r ON r.id = ar.role_id
		JOIN business_elements e ON e.id = ar.element_id
		WHERE ur.user_id = $1 AND r.is_active AND e.is_active
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var effective []EffectiveRule
	for rows.Next() {
		var er EffectiveRule
		if err := rows.Scan(&er.ElementName, &er.Rule.ID, &er.Rule.RoleID, &er.Rule.ElementID,
			&er.Rule.Read, &er.Rule.ReadAll, &er.Rule.Create,
			&er.Rule.Update, &er.Rule.UpdateAll, &er.Rule.Delete, &er.Rule.DeleteAll); err != nil {
			return nil, err
		}
		effective = append(effective, er)
	}
	return effective, rows.Err()
}

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func scanElement(row pgx.Row) (*BusinessElement, error) {
	var element BusinessElement
	if err := row.Scan(&element.ID, &element.Name, &element.Description, &element.HasOwner, &element.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &element, nil
}

func scanRule(row pgx.Row) (*AccessRule, error) {
	var rule AccessRule
	if err := row.Scan(&rule.ID, &rule.RoleID, &rule.ElementID,
		&rule.Read, &rule.ReadAll, &rule.Create,
		&rule.Update, &rule.UpdateAll, &rule.Delete, &rule.DeleteAll); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func collectRules(rows pgx.Rows) ([]AccessRule, error) {
	var rules []AccessRule
	for rows.Next() {
		var rule AccessRule
		if err := rows.Scan(&rule.ID, &rule.RoleID, &rule.ElementID,
			&rule.Read, &rule.ReadAll, &rule.Create,
			&rule.Update, &rule.UpdateAll, &rule.Delete, &rule.DeleteAll); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
