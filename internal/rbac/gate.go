package rbac

import (
	"log/slog"
	"net/http"

	"github.com/sentra-auth/sentra/internal/shared"
)

// DecisionRecorder counts gate decisions. Satisfied by observability.Metrics.
type DecisionRecorder interface {
	RecordAuthzDecision(allowed bool)
}

// Gate is the final allow/deny decision point for HTTP requests. Each route
// group declares the resource it exposes; the action is derived from the
// request verb. Routes mounted outside the gate bypass it by construction.
type Gate struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Metrics   DecisionRecorder
}

// RequireAuthenticated rejects requests with no resolved identity, without
// consulting the permission matrix.
func (g Gate) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.IdentityFromContext(r.Context()) == nil {
			shared.RespondError(w, shared.ErrAuthRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require authorizes (resource, action-from-verb) without an owner. Suitable
// for collection routes and admin resources without row ownership.
func (g Gate) Require(resource string) func(http.Handler) http.Handler {
	return g.require(resource, nil)
}

// RequireSelf authorizes against the caller's own id as the object owner.
// Used for routes acting on the caller's account.
func (g Gate) RequireSelf(resource string) func(http.Handler) http.Handler {
	return g.require(resource, func(r *http.Request) *string {
		if ident := shared.IdentityFromContext(r.Context()); ident != nil {
			id := ident.User.ID
			return &id
		}
		return nil
	})
}

func (g Gate) require(resource string, ownerFn func(*http.Request) *string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := shared.IdentityFromContext(r.Context())
			if ident == nil {
				shared.RespondError(w, shared.ErrAuthRequired)
				return
			}
			var ownerID *string
			if ownerFn != nil {
				ownerID = ownerFn(r)
			}
			allowed, err := g.Evaluator.Evaluate(r.Context(), ident.User, resource, ActionForMethod(r.Method), ownerID)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("authorization gate", slog.String("resource", resource), slog.Any("error", err))
				}
				shared.RespondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}
			if g.Metrics != nil {
				g.Metrics.RecordAuthzDecision(allowed)
			}
			if !allowed {
				shared.RespondError(w, shared.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActionForMethod maps an HTTP verb to the matrix action.
func ActionForMethod(method string) Action {
	switch method {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}
