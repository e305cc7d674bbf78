package settlement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fleetline/fleetline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for earnings and the payment workflows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/drivers/{driverID}/earnings", h.earnings)
	r.Get("/drivers/{driverID}/direct-payments", h.listDirectPayments)
	r.Post("/drivers/{driverID}/direct-payments", h.addDirectPayment)
	r.Delete("/direct-payments/{id}", h.deleteDirectPayment)
	r.Get("/boss-payments", h.listBossPayments)
	r.Get("/boss-payments/pending", h.pendingBossPayments)
	r.Get("/drivers/{driverID}/boss-payments/approved", h.approvedBossPayments)
	r.Get("/drivers/{driverID}/boss-payments/history", h.bossPaymentHistory)
	r.Get("/boss-payments/{id}", h.getBossPayment)
	r.Post("/boss-payments", h.requestPayment)
	r.Post("/boss-payments/admin", h.adminSubmitPayment)
	r.Post("/boss-payments/{id}/approve", h.approvePayment)
	r.Post("/boss-payments/{id}/cancel", h.cancelPayment)
}

type bossPaymentRequest struct {
	DriverID int64           `json:"driver_id" validate:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Reason   string          `json:"reason" validate:"required,min=5"`
}

type directPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	PaymentType string          `json:"payment_type"`
	Reason      string          `json:"reason"`
}

// periodQuery reads the optional period and date query parameters. The date
// defaults to today.
func periodQuery(r *http.Request) (string, time.Time, error) {
	period := r.URL.Query().Get("period")
	date := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return "", time.Time{}, err
		}
		date = parsed
	}
	return period, date, nil
}

// actorID reads the acting user from the X-Actor-ID header. Zero means the
// actor is unknown.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func (h *Handler) earnings(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	period, date, err := periodQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
		return
	}
	summary, err := h.service.DriverEarnings(r.Context(), driverID, period, date)
	if err != nil {
		h.logger.Error("driver earnings", slog.Int64("driver_id", driverID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) listDirectPayments(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	period, date, err := periodQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
		return
	}
	var list []DirectPayment
	if period != "" {
		list, err = h.service.ListDirectPaymentsByPeriod(r.Context(), driverID, period, date)
	} else {
		list, err = h.service.ListDirectPayments(r.Context(), driverID)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) addDirectPayment(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	var req directPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	payment, err := h.service.AddDirectPayment(r.Context(), actorID(r), driverID, req.Amount, req.PaymentType, req.Reason)
	if err != nil {
		h.logger.Error("add direct payment", slog.Int64("driver_id", driverID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) deleteDirectPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	if err := h.service.DeleteDirectPayment(r.Context(), actorID(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listBossPayments(w http.ResponseWriter, r *http.Request) {
	var driverID *int64
	if v := r.URL.Query().Get("driver_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
			return
		}
		driverID = &id
	}
	var status *PaymentStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := PaymentStatus(v)
		status = &s
	}
	list, err := h.service.ListBossPayments(r.Context(), driverID, status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) pendingBossPayments(w http.ResponseWriter, r *http.Request) {
	var driverID *int64
	if v := r.URL.Query().Get("driver_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
			return
		}
		driverID = &id
	}
	list, err := h.service.PendingPayments(r.Context(), driverID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) approvedBossPayments(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	period, date, err := periodQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
		return
	}
	if period == "" {
		period = "month"
	}
	list, err := h.service.ApprovedPayments(r.Context(), driverID, period, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) bossPaymentHistory(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driverID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid driver id")
		return
	}
	list, err := h.service.PaymentHistory(r.Context(), driverID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getBossPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	payment, err := h.service.GetBossPayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) requestPayment(w http.ResponseWriter, r *http.Request) {
	h.submitPayment(w, r, false)
}

func (h *Handler) adminSubmitPayment(w http.ResponseWriter, r *http.Request) {
	h.submitPayment(w, r, true)
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request, admin bool) {
	var req bossPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var (
		payment BossPayment
		err     error
	)
	if admin {
		payment, err = h.service.AdminSubmitPayment(r.Context(), actorID(r), req.DriverID, req.Amount, req.Reason)
	} else {
		payment, err = h.service.RequestPayment(r.Context(), actorID(r), req.DriverID, req.Amount, req.Reason)
	}
	if err != nil {
		h.logger.Error("submit boss payment", slog.Int64("driver_id", req.DriverID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) approvePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	payment, err := h.service.ApprovePayment(r.Context(), actorID(r), id)
	if err != nil {
		h.logger.Error("approve boss payment", slog.Int64("payment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	payment, err := h.service.CancelPayment(r.Context(), actorID(r), id)
	if err != nil {
		h.logger.Error("cancel boss payment", slog.Int64("payment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}
