package access

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chalkboard-sms/chalkboard/internal/platform/httpx"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
)

// PermissionsHandler exposes the tenant override matrix for administration.
type PermissionsHandler struct {
	logger    *slog.Logger
	repo      *OverrideRepository
	resolver  *Resolver
	validator *validator.Validate
}

// NewPermissionsHandler constructs the handler.
func NewPermissionsHandler(logger *slog.Logger, repo *OverrideRepository, resolver *Resolver) *PermissionsHandler {
	return &PermissionsHandler{
		logger:    logger,
		repo:      repo,
		resolver:  resolver,
		validator: validator.New(),
	}
}

// MountRoutes attaches permission administration routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/{code}", h.get)
	r.Put("/{code}", h.set)
	r.Get("/{code}/check", h.check)
}

func (h *PermissionsHandler) get(w http.ResponseWriter, r *http.Request) {
	code := registry.CanonicalizeCode(chi.URLParam(r, "code"))
	matrix, err := h.repo.Overrides(r.Context(), code)
	if err != nil {
		h.logger.Error("permissions get", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"code":   code,
		"matrix": matrix,
	})
}

type setOverridesRequest struct {
	Matrix registry.PermissionMatrix `json:"matrix" validate:"required"`
}

func (h *PermissionsHandler) set(w http.ResponseWriter, r *http.Request) {
	var req setOverridesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	code := registry.CanonicalizeCode(chi.URLParam(r, "code"))
	if err := h.repo.SetOverrides(r.Context(), code, req.Matrix); err != nil {
		h.logger.Error("permissions set", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// check answers a single permission question, mainly for debugging and for
// collaborators that cannot run the middleware.
func (h *PermissionsHandler) check(w http.ResponseWriter, r *http.Request) {
	code := registry.CanonicalizeCode(chi.URLParam(r, "code"))
	role := r.URL.Query().Get("role")
	key := r.URL.Query().Get("permission")
	if role == "" || key == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role and permission are required")
		return
	}
	allowed, err := h.resolver.IsAllowed(r.Context(), role, code, key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":       role,
		"code":       code,
		"permission": key,
		"allowed":    allowed,
	})
}
