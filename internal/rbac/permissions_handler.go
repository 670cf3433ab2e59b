package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentra-auth/sentra/internal/shared"
)

// PermissionsHandler serves the caller's effective permission matrix.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler constructs a PermissionsHandler.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers the introspection endpoint.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.handlePermissions)
}

type permissionsResponse struct {
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	IsSuperuser bool       `json:"is_superuser"`
	Roles       []roleInfo `json:"roles"`
	Permissions Matrix     `json:"permissions"`
}

type roleInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (h *PermissionsHandler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	if ident == nil {
		shared.RespondError(w, shared.ErrAuthRequired)
		return
	}
	roles, err := h.service.RolesForUser(r.Context(), ident.User.ID)
	if err != nil {
		h.logger.Error("list user roles", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	matrix, err := h.service.PermissionMatrix(r.Context(), ident.User.ID)
	if err != nil {
		h.logger.Error("permission matrix", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	resp := permissionsResponse{
		UserID:      ident.User.ID,
		Email:       ident.User.Email,
		IsSuperuser: ident.User.IsSuperuser,
		Roles:       make([]roleInfo, len(roles)),
		Permissions: matrix,
	}
	for i, role := range roles {
		resp.Roles[i] = roleInfo{ID: role.ID, Name: role.Name, IsActive: role.IsActive}
	}
	shared.RespondJSON(w, http.StatusOK, resp)
}
