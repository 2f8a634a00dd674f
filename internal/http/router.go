// Package httpapi assembles the HTTP surface: middleware chain, public and
// authenticated route groups, and the operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	audithandler "gestionale/internal/audit/handler"
	customerhandler "gestionale/internal/customer/handler"
	identityhandler "gestionale/internal/identity/handler"
	"gestionale/internal/platform/metrics"
	"gestionale/internal/platform/middleware"
	producthandler "gestionale/internal/product/handler"
	reporthandler "gestionale/internal/report/handler"
	salehandler "gestionale/internal/sale/handler"
	tickethandler "gestionale/internal/ticket/handler"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/platform/middleware/auth"
	"gestionale/pkg/platform/middleware/metadata"
	"gestionale/pkg/platform/middleware/requesttime"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency checked by /readyz.
type Pinger func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Sessions      auth.SessionResolver
	WebhookSecret string
	Ready         map[string]Pinger

	// ClientIP resolves the caller address; nil trusts no proxy.
	ClientIP *metadata.ClientIPResolver

	Identity  *identityhandler.Handler
	Customers *customerhandler.Handler
	Products  *producthandler.Handler
	Sales     *salehandler.Handler
	Tickets   *tickethandler.Handler
	Reports   *reporthandler.Handler
	Audit     *audithandler.Handler
}

// NewRouter builds the root handler. Every business route sits behind
// RequirePrincipal, so anonymous requests fail before their body is decoded.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	clientIP := d.ClientIP
	if clientIP == nil {
		clientIP = &metadata.ClientIPResolver{}
	}
	r.Use(clientIP.Middleware)
	r.Use(requesttime.Middleware)
	if d.Metrics != nil {
		r.Use(d.Metrics.Instrument)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(d.Ready, d.Logger))

	// Signed by the payment provider, not by a session.
	d.Sales.RegisterWebhook(r, d.WebhookSecret)

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(d.Sessions, identityhandler.CookieName, d.Logger))
		d.Identity.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePrincipal(d.Logger))
			d.Identity.Register(r)
			d.Customers.Register(r)
			d.Products.Register(r)
			d.Sales.Register(r)
			d.Tickets.Register(r)
			d.Reports.Register(r)
			d.Audit.Register(r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not_found"})
	})
	return r
}

func readyHandler(checks map[string]Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				result[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "up"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": result})
	}
}
