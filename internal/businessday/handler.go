package businessday

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetline/fleetline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for business days.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers business day routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/active", h.active)
	r.Get("/{id}", h.get)
	r.Post("/open", h.open)
	r.Post("/{id}/close", h.close)
}

type openDayRequest struct {
	OpenedByName string `json:"opened_by_name" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	days, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list business days", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, days)
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	day, err := h.service.Active(r.Context())
	if err != nil {
		h.logger.Error("active business day", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if day == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no business day is open")
		return
	}
	httpx.JSON(w, http.StatusOK, day)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid business day id")
		return
	}
	day, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, day)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openDayRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	day, err := h.service.Open(r.Context(), OpenInput{OpenedByName: req.OpenedByName})
	if err != nil {
		h.logger.Error("open business day", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, day)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid business day id")
		return
	}
	day, err := h.service.Close(r.Context(), id)
	if err != nil {
		h.logger.Error("close business day", slog.Int64("day_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, day)
}
