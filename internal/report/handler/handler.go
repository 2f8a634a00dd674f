package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gestionale/internal/export"
	"gestionale/internal/report/models"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the report operations exposed over HTTP.
type Service interface {
	Summary(ctx context.Context) (*models.Summary, error)
	Churn(ctx context.Context) ([]models.ChurnRow, error)
	Export(ctx context.Context, scope models.Scope) (export.Table, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/reports/summary", h.handleSummary)
	r.Get("/reports/churn", h.handleChurn)
	r.Get("/reports/export", h.handleExport)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleChurn(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Churn(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []models.ChurnRow{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := models.ParseScope(r.URL.Query().Get("scope"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "scope must be one of customers, products, sales"))
		return
	}
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "format must be one of csv, xlsx, pdf"))
		return
	}

	table, err := h.svc.Export(ctx, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	name := strings.ToUpper(string(scope))
	body, err := export.Render(table, format, name, name+" REPORT")
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render report export",
			"error", err,
			"scope", string(scope),
			"format", string(format),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render export"))
		return
	}
	httputil.WriteAttachment(w, format.ContentType(), format.Filename(string(scope)+"_report"), body)
}
