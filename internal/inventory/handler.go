package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetline/fleetline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock movements and driver ledgers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/assign", h.assign)
	r.Post("/transfer", h.transfer)
	r.Get("/drivers/{driverID}", h.driverInventory)
	r.Get("/drivers/{driverID}/assignments", h.assignments)
	r.Get("/drivers/{driverID}/transfers", h.transfers)
}

type assignRequest struct {
	DriverID  int64 `json:"driver_id" validate:"required,gt=0"`
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type transferRequest struct {
	FromDriverID int64  `json:"from_driver_id" validate:"required,gt=0"`
	ToDriverID   *int64 `json:"to_driver_id"`
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	assignment, err := h.service.AssignStock(r.Context(), AssignInput{
		DriverID:  req.DriverID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.logger.Error("assign stock", slog.Int64("driver_id", req.DriverID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	transfer, err := h.service.TransferStock(r.Context(), TransferInput{
		FromDriverID: req.FromDriverID,
		ToDriverID:   req.ToDriverID,
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
	})
	if err != nil {
		h.logger.Error("transfer stock", slog.Int64("from_driver_id", req.FromDriverID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) driverInventory(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	lines, err := h.service.GetDriverInventory(r.Context(), driverID)
	if err != nil {
		h.logger.Error("driver inventory", slog.Int64("driver_id", driverID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) assignments(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	list, err := h.service.ListAssignments(r.Context(), driverID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) transfers(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	list, err := h.service.ListTransfers(r.Context(), driverID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
