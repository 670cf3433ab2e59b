package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/sentra-auth/sentra/internal/shared"
)

// Evaluator decides whether a user may perform an action on a named resource.
// It is a pure read path: "no permission" is a normal deny, never an error.
// Callers must reject anonymous or inactive users before evaluation.
type Evaluator struct {
	rules RuleSource
}

// NewEvaluator constructs an Evaluator over the given rule source.
func NewEvaluator(rules RuleSource) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate returns the allow/deny decision for (user, resource, action).
// ownerID, when non-nil, is the owner of the specific object being acted on
// and feeds the row-level check for update and delete. An error is returned
// only when the backing store fails.
func (e *Evaluator) Evaluate(ctx context.Context, user shared.Principal, resourceName string, action Action, ownerID *string) (bool, error) {
	// Superusers bypass the matrix entirely, even for unknown resources.
	if user.IsSuperuser {
		return true, nil
	}

	element, err := e.rules.ActiveElementByName(ctx, resourceName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Unknown or disabled resource is indistinguishable from no access.
			return false, nil
		}
		return false, err
	}

	roleIDs, err := e.rules.RoleIDsForUser(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if len(roleIDs) == 0 {
		return false, nil
	}

	rules, err := e.rules.ActiveRulesForRoles(ctx, element.ID, roleIDs)
	if err != nil {
		return false, err
	}

	// OR-fold over all matched rules: an "all" facet grants unconditionally,
	// the plain facet grants subject to ownership.
	var ownPermission bool
	for _, rule := range rules {
		switch action {
		case ActionRead:
			if rule.ReadAll {
				return true, nil
			}
			ownPermission = ownPermission || rule.Read
		case ActionCreate:
			if rule.Create {
				return true, nil
			}
		case ActionUpdate:
			if rule.UpdateAll {
				return true, nil
			}
			ownPermission = ownPermission || rule.Update
		case ActionDelete:
			if rule.DeleteAll {
				return true, nil
			}
			ownPermission = ownPermission || rule.Delete
		}
	}

	if !ownPermission {
		return false, nil
	}

	switch action {
	case ActionCreate:
		return true, nil
	case ActionRead:
		// List-level reads are allowed on the plain facet; filtering returned
		// rows down to the caller's own is the collaborator's obligation.
		return true, nil
	default:
		return ownerID != nil && normalizeID(*ownerID) == normalizeID(user.ID), nil
	}
}

// EvaluateOwned is Evaluate for a concrete object declaring the ownable
// contract.
func (e *Evaluator) EvaluateOwned(ctx context.Context, user shared.Principal, resourceName string, action Action, obj Ownable) (bool, error) {
	if obj == nil {
		return e.Evaluate(ctx, user, resourceName, action, nil)
	}
	owner := obj.OwnerID()
	return e.Evaluate(ctx, user, resourceName, action, &owner)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
