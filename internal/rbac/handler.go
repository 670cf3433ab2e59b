package rbac

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra-auth/sentra/internal/shared"
)

// AdminHandler wires the management endpoints for roles, elements, rules and
// assignments. Access to each group is governed by the matrix itself through
// the gate middleware configured at mount time.
type AdminHandler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(logger *slog.Logger, service *Service) *AdminHandler {
	return &AdminHandler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoleRoutes registers role management endpoints.
func (h *AdminHandler) MountRoleRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Get("/{id}", h.getRole)
	r.Patch("/{id}", h.updateRole)
	r.Delete("/{id}", h.deleteRole)
}

// MountElementRoutes registers business element management endpoints.
func (h *AdminHandler) MountElementRoutes(r chi.Router) {
	r.Get("/", h.listElements)
	r.Post("/", h.createElement)
	r.Patch("/{id}", h.updateElement)
}

// MountRuleRoutes registers access rule management endpoints.
func (h *AdminHandler) MountRuleRoutes(r chi.Router) {
	r.Get("/", h.listRules)
	r.Post("/", h.createRule)
	r.Patch("/{id}", h.updateRule)
	r.Delete("/{id}", h.deleteRule)
}

// MountAssignmentRoutes registers role assignment endpoints.
func (h *AdminHandler) MountAssignmentRoutes(r chi.Router) {
	r.Get("/", h.listAssignments)
	r.Post("/", h.assign)
	r.Delete("/{id}", h.unassign)
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

type roleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

func toRoleResponse(role *Role) roleResponse {
	return roleResponse{ID: role.ID, Name: role.Name, Description: role.Description, IsActive: role.IsActive}
}

func (h *AdminHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i := range roles {
		out[i] = toRoleResponse(&roles[i])
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description, boolOrDefault(req.IsActive, true))
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *AdminHandler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *AdminHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description, boolOrDefault(req.IsActive, true))
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *AdminHandler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]string{"message": "role deleted"})
}

type elementRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	HasOwner    bool   `json:"has_owner_field"`
	IsActive    *bool  `json:"is_active"`
}

type elementResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	HasOwner    bool   `json:"has_owner_field"`
	IsActive    bool   `json:"is_active"`
}

func toElementResponse(element *BusinessElement) elementResponse {
	return elementResponse{
		ID:          element.ID,
		Name:        element.Name,
		Description: element.Description,
		HasOwner:    element.HasOwner,
		IsActive:    element.IsActive,
	}
}

func (h *AdminHandler) listElements(w http.ResponseWriter, r *http.Request) {
	elements, err := h.service.ListElements(r.Context())
	if err != nil {
		h.fail(w, "list elements", err)
		return
	}
	out := make([]elementResponse, len(elements))
	for i := range elements {
		out[i] = toElementResponse(&elements[i])
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) createElement(w http.ResponseWriter, r *http.Request) {
	var req elementRequest
	if !h.decode(w, r, &req) {
		return
	}
	element, err := h.service.CreateElement(r.Context(), req.Name, req.Description, req.HasOwner, boolOrDefault(req.IsActive, true))
	if err != nil {
		h.fail(w, "create element", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toElementResponse(element))
}

func (h *AdminHandler) updateElement(w http.ResponseWriter, r *http.Request) {
	var req elementRequest
	if !h.decode(w, r, &req) {
		return
	}
	element, err := h.service.UpdateElement(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description, req.HasOwner, boolOrDefault(req.IsActive, true))
	if err != nil {
		h.fail(w, "update element", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toElementResponse(element))
}

type ruleRequest struct {
	RoleID    string `json:"role_id" validate:"required,uuid"`
	ElementID string `json:"element_id" validate:"required,uuid"`
	Read      bool   `json:"read"`
	ReadAll   bool   `json:"read_all"`
	Create    bool   `json:"create"`
	Update    bool   `json:"update"`
	UpdateAll bool   `json:"update_all"`
	Delete    bool   `json:"delete"`
	DeleteAll bool   `json:"delete_all"`
}

type ruleUpdateRequest struct {
	Read      bool `json:"read"`
	ReadAll   bool `json:"read_all"`
	Create    bool `json:"create"`
	Update    bool `json:"update"`
	UpdateAll bool `json:"update_all"`
	Delete    bool `json:"delete"`
	DeleteAll bool `json:"delete_all"`
}

type ruleResponse struct {
	ID        string `json:"id"`
	RoleID    string `json:"role_id"`
	ElementID string `json:"element_id"`
	Read      bool   `json:"read"`
	ReadAll   bool   `json:"read_all"`
	Create    bool   `json:"create"`
	Update    bool   `json:"update"`
	UpdateAll bool   `json:"update_all"`
	Delete    bool   `json:"delete"`
	DeleteAll bool   `json:"delete_all"`
}

func toRuleResponse(rule *AccessRule) ruleResponse {
	return ruleResponse{
		ID:        rule.ID,
		RoleID:    rule.RoleID,
		ElementID: rule.ElementID,
		Read:      rule.Read,
		ReadAll:   rule.ReadAll,
		Create:    rule.Create,
		Update:    rule.Update,
		UpdateAll: rule.UpdateAll,
		Delete:    rule.Delete,
		DeleteAll: rule.DeleteAll,
	}
}

func (h *AdminHandler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		h.fail(w, "list rules", err)
		return
	}
	out := make([]ruleResponse, len(rules))
	for i := range rules {
		out[i] = toRuleResponse(&rules[i])
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), RuleInput{
		RoleID:    req.RoleID,
		ElementID: req.ElementID,
		Read:      req.Read,
		ReadAll:   req.ReadAll,
		Create:    req.Create,
		Update:    req.Update,
		UpdateAll: req.UpdateAll,
		Delete:    req.Delete,
		DeleteAll: req.DeleteAll,
	})
	if err != nil {
		h.fail(w, "create rule", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *AdminHandler) updateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), chi.URLParam(r, "id"), RuleInput{
		Read:      req.Read,
		ReadAll:   req.ReadAll,
		Create:    req.Create,
		Update:    req.Update,
		UpdateAll: req.UpdateAll,
		Delete:    req.Delete,
		DeleteAll: req.DeleteAll,
	})
	if err != nil {
		h.fail(w, "update rule", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *AdminHandler) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete rule", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]string{"message": "rule deleted"})
}

type assignmentRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	RoleID string `json:"role_id" validate:"required,uuid"`
}

type assignmentResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	RoleID     string  `json:"role_id"`
	AssignedAt string  `json:"assigned_at,omitempty"`
	AssignedBy *string `json:"assigned_by,omitempty"`
}

func (h *AdminHandler) listAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.ListAssignments(r.Context())
	if err != nil {
		h.fail(w, "list assignments", err)
		return
	}
	out := make([]assignmentResponse, len(assignments))
	for i, assignment := range assignments {
		out[i] = assignmentResponse{
			ID:         assignment.ID,
			UserID:     assignment.UserID,
			RoleID:     assignment.RoleID,
			AssignedAt: assignment.AssignedAt.Format("2006-01-02T15:04:05Z07:00"),
			AssignedBy: assignment.AssignedBy,
		}
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	var assignedBy *string
	if ident := shared.IdentityFromContext(r.Context()); ident != nil {
		id := ident.User.ID
		assignedBy = &id
	}
	assignment, err := h.service.Assign(r.Context(), req.UserID, req.RoleID, assignedBy)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, assignmentResponse{
		ID:         assignment.ID,
		UserID:     assignment.UserID,
		RoleID:     assignment.RoleID,
		AssignedBy: assignment.AssignedBy,
	})
}

func (h *AdminHandler) unassign(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unassign(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "unassign role", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]string{"message": "role unassigned"})
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		shared.RespondValidationError(w, map[string]string{"body": "malformed json"})
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		shared.RespondValidationError(w, fields)
		return false
	}
	return true
}

func (h *AdminHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	shared.RespondError(w, err)
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
