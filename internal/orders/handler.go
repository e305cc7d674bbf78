package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetline/fleetline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the order lifecycle.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/cancel", h.cancel)
	r.Delete("/{id}", h.delete)
}

type lineItemRequest struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	Category   string `json:"category" validate:"required"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	IsFreeGift bool   `json:"is_free_gift"`
}

type orderRequest struct {
	DriverID       int64             `json:"driver_id" validate:"required,gt=0"`
	SalesRepID     int64             `json:"sales_rep_id"`
	CustomerName   string            `json:"customer_name" validate:"required"`
	CustomerPhone  string            `json:"customer_phone"`
	Address        string            `json:"address"`
	Description    string            `json:"description"`
	DeliveryMethod string            `json:"delivery_method" validate:"required"`
	TotalPrice     decimal.Decimal   `json:"total_price"`
	DriverSalary   *decimal.Decimal  `json:"driver_salary"`
	Note           string            `json:"note"`
	Status         *Status           `json:"status"`
	RequestID      *uuid.UUID        `json:"request_id"`
	Items          []lineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type cancelRequest struct {
	PayDriver bool `json:"pay_driver"`
}

func (r orderRequest) items() []LineItemInput {
	items := make([]LineItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, LineItemInput{ProductID: it.ProductID, Category: it.Category, Quantity: it.Quantity, IsFreeGift: it.IsFreeGift})
	}
	return items
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, period, date, err := parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var list []Order
	if period != "" {
		list, err = h.service.ListByPeriod(r.Context(), filter, period, date)
	} else {
		list, err = h.service.List(r.Context(), filter)
	}
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Create(r.Context(), CreateOrderInput{
		DriverID:       req.DriverID,
		SalesRepID:     req.SalesRepID,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Address:        req.Address,
		Description:    req.Description,
		DeliveryMethod: req.DeliveryMethod,
		TotalPrice:     req.TotalPrice,
		DriverSalary:   req.DriverSalary,
		Note:           req.Note,
		RequestID:      req.RequestID,
		Items:          req.items(),
	})
	if err != nil {
		h.logger.Error("create order", slog.Int64("driver_id", req.DriverID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Update(r.Context(), id, UpdateOrderInput{
		DriverID:       req.DriverID,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Address:        req.Address,
		Description:    req.Description,
		DeliveryMethod: req.DeliveryMethod,
		TotalPrice:     req.TotalPrice,
		DriverSalary:   req.DriverSalary,
		Note:           req.Note,
		Status:         req.Status,
		Items:          req.items(),
	})
	if err != nil {
		h.logger.Error("update order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.service.Complete(r.Context(), id)
	if err != nil {
		h.logger.Error("complete order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	order, err := h.service.Cancel(r.Context(), id, req.PayDriver)
	if err != nil {
		h.logger.Error("cancel order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) (Filter, string, time.Time, error) {
	q := r.URL.Query()
	var filter Filter
	if v := q.Get("driver_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Filter{}, "", time.Time{}, err
		}
		filter.DriverID = &id
	}
	if v := q.Get("sales_rep_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Filter{}, "", time.Time{}, err
		}
		filter.SalesRepID = &id
	}
	if v := q.Get("business_day_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Filter{}, "", time.Time{}, err
		}
		filter.BusinessDayID = &id
	}
	if v := q.Get("start_date"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return Filter{}, "", time.Time{}, err
		}
		filter.From = &from
	}
	if v := q.Get("end_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return Filter{}, "", time.Time{}, err
		}
		// end date is inclusive; the filter bound is exclusive
		to := parsed.AddDate(0, 0, 1)
		filter.To = &to
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		filter.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	period := q.Get("period")
	date := time.Now()
	if v := q.Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return Filter{}, "", time.Time{}, err
		}
		date = parsed
	}
	return filter, period, date, nil
}
