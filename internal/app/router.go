package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetline/fleetline/internal/businessday"
	"github.com/fleetline/fleetline/internal/catalog"
	"github.com/fleetline/fleetline/internal/drivers"
	"github.com/fleetline/fleetline/internal/inventory"
	"github.com/fleetline/fleetline/internal/observability"
	"github.com/fleetline/fleetline/internal/orders"
	"github.com/fleetline/fleetline/internal/platform/httpx"
	"github.com/fleetline/fleetline/internal/settlement"
	"github.com/fleetline/fleetline/jobs"
)

// RouterParams aggregates everything the HTTP surface mounts.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	Catalog     *catalog.Handler
	Drivers     *drivers.Handler
	Inventory   *inventory.Handler
	Orders      *orders.Handler
	Settlement  *settlement.Handler
	BusinessDay *businessday.Handler
	Jobs        *jobs.Handler
}

// NewRouter assembles the chi router with the full middleware chain and all
// module routes.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", p.Catalog.MountRoutes)
		r.Route("/drivers", p.Drivers.MountRoutes)
		r.Route("/inventory", p.Inventory.MountRoutes)
		r.Route("/orders", p.Orders.MountRoutes)
		r.Route("/settlement", p.Settlement.MountRoutes)
		r.Route("/business-days", p.BusinessDay.MountRoutes)
		if p.Jobs != nil {
			r.Route("/jobs", p.Jobs.MountRoutes)
		}
	})

	return r
}
