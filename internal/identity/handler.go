package identity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chalkboard-sms/chalkboard/internal/access"
	"github.com/chalkboard-sms/chalkboard/internal/platform/httpx"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// Handler exposes provisioning endpoints for administrators.
type Handler struct {
	logger    *slog.Logger
	issuer    *Issuer
	audit     *shared.AuditLogger
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, issuer *Issuer, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		issuer:    issuer,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes attaches identity routes behind the authorization guard.
func (h *Handler) MountRoutes(r chi.Router, require func(string) func(http.Handler) http.Handler) {
	r.With(require(access.PermProvisionUsers)).Post("/provision", h.provision)
	r.With(require(access.PermResetCredentials)).Post("/{role}/{userID}/reset", h.reset)
}

type provisionRequest struct {
	Role        string `json:"role" validate:"required,oneof=admin teacher student parent"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,max=10"`
}

type provisionResponse struct {
	UserID                   string `json:"user_id"`
	Role                     string `json:"role"`
	School                   string `json:"school"`
	Credential               string `json:"credential"`
	CredentialChangeRequired bool   `json:"credential_change_required"`
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok || identity.School == "" {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing caller identity")
		return
	}
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	issued, err := h.issuer.Issue(r.Context(), identity.School, req.Role, req.DateOfBirth)
	if err != nil {
		h.logger.Error("identity provision",
			slog.String("school", identity.School),
			slog.String("role", req.Role),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.audit != nil {
		_ = h.audit.Record(r.Context(), shared.AuditLog{
			ActorID: identity.ActorID,
			School:  identity.School,
			Action:  "identity.provision",
			Entity:  issued.UserID,
			Meta:    map[string]any{"role": issued.Role},
		})
	}
	httpx.JSON(w, http.StatusCreated, provisionResponse{
		UserID:                   issued.UserID,
		Role:                     issued.Role,
		School:                   issued.School,
		Credential:               issued.PlaintextCredential,
		CredentialChangeRequired: issued.CredentialChangeRequired,
	})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok || identity.School == "" {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing caller identity")
		return
	}
	role := chi.URLParam(r, "role")
	userID := chi.URLParam(r, "userID")

	plaintext, err := h.issuer.ResetCredential(r.Context(), identity.School, role, userID)
	if err != nil {
		h.logger.Error("identity reset",
			slog.String("school", identity.School),
			slog.String("role", role),
			slog.String("user_id", userID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.audit != nil {
		_ = h.audit.Record(r.Context(), shared.AuditLog{
			ActorID: identity.ActorID,
			School:  identity.School,
			Action:  "identity.reset_credential",
			Entity:  userID,
			Meta:    map[string]any{"role": role},
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":                    userID,
		"credential":                 plaintext,
		"credential_change_required": true,
	})
}
