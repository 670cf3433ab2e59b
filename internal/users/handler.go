package users

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra-auth/sentra/internal/shared"
)

// Handler wires HTTP endpoints for account management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountPublicRoutes registers the endpoints reachable without a token.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
}

// MountProfileRoutes registers the endpoints acting on the caller's account.
func (h *Handler) MountProfileRoutes(r chi.Router) {
	r.Get("/profile", h.handleProfile)
	r.Patch("/profile", h.handleUpdateProfile)
	r.Delete("/account", h.handleDeleteAccount)
}

type registerRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required,max=50"`
	LastName        string `json:"last_name" validate:"required,max=50"`
	Patronymic      string `json:"patronymic" validate:"max=50"`
}

type profileRequest struct {
	FirstName  string `json:"first_name" validate:"required,max=50"`
	LastName   string `json:"last_name" validate:"required,max=50"`
	Patronymic string `json:"patronymic" validate:"max=50"`
}

type userResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Patronymic string    `json:"patronymic,omitempty"`
	FullName   string    `json:"full_name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(user *User) userResponse {
	return userResponse{
		ID:         user.ID,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Patronymic: user.Patronymic,
		FullName:   user.FullName(),
		IsActive:   user.IsActive,
		CreatedAt:  user.CreatedAt,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Patronymic: req.Patronymic,
	})
	if err != nil {
		h.fail(w, "register user", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	if ident == nil {
		shared.RespondError(w, shared.ErrAuthRequired)
		return
	}
	user, err := h.service.Profile(r.Context(), ident.User.ID)
	if err != nil {
		h.fail(w, "load profile", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	if ident == nil {
		shared.RespondError(w, shared.ErrAuthRequired)
		return
	}
	var req profileRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), ident.User.ID, ProfileInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Patronymic: req.Patronymic,
	})
	if err != nil {
		h.fail(w, "update profile", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	if ident == nil {
		shared.RespondError(w, shared.ErrAuthRequired)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), ident.User.ID); err != nil {
		h.fail(w, "delete account", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
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

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	shared.RespondError(w, err)
}
