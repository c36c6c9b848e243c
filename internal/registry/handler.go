package registry

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chalkboard-sms/chalkboard/internal/platform/httpx"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// Handler exposes catalog administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes attaches registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.register)
	r.Get("/resolve", h.resolve)
	r.Get("/{code}", h.get)
	r.Put("/{code}/fallback", h.setFallback)
	r.Post("/{code}/deactivate", h.deactivate)
}

type schoolResponse struct {
	Code              string           `json:"code"`
	DisplayName       string           `json:"display_name"`
	FallbackOverrides PermissionMatrix `json:"fallback_overrides,omitempty"`
	Active            bool             `json:"active"`
}

func toResponse(school School) schoolResponse {
	return schoolResponse{
		Code:              school.Code,
		DisplayName:       school.DisplayName,
		FallbackOverrides: school.FallbackOverrides,
		Active:            school.Active,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	schools, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("registry list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(schools))
	start := (pagination.Page - 1) * pagination.PerPage
	if start > len(schools) {
		start = len(schools)
	}
	end := start + pagination.PerPage
	if end > len(schools) {
		end = len(schools)
	}
	items := make([]schoolResponse, 0, end-start)
	for _, school := range schools[start:end] {
		items = append(items, toResponse(school))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"schools": items,
		"page":    pagination.Page,
		"pages":   pagination.TotalPages,
		"total":   pagination.Total,
	})
}

type registerRequest struct {
	Code        string `json:"code" validate:"required,min=2,max=12,alphanum"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=120"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	school, err := h.service.Register(r.Context(), req.Code, req.DisplayName)
	if err != nil {
		h.logger.Error("registry register", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(school))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	code, err := h.service.Resolve(r.Context(), identifier)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"code": code})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	school, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(school))
}

type fallbackRequest struct {
	Matrix PermissionMatrix `json:"matrix" validate:"required"`
}

func (h *Handler) setFallback(w http.ResponseWriter, r *http.Request) {
	var req fallbackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetFallbackOverrides(r.Context(), chi.URLParam(r, "code"), req.Matrix); err != nil {
		h.logger.Error("registry set fallback", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.logger.Error("registry deactivate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
