package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gestionale/internal/audit/models"
	"gestionale/internal/export"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const dateLayout = "2006-01-02"

// Service defines the audit read operations exposed over HTTP.
type Service interface {
	AuthorizeRead(ctx context.Context) error
	List(ctx context.Context, filter models.Filter, req page.Request) (page.Result[models.Record], error)
	Export(ctx context.Context, filter models.Filter) (export.Table, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.handleList)
	r.Get("/audit/export", h.handleExport)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.AuthorizeRead(r.Context()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := page.New(httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "limit", page.DefaultLimit))
	res, err := h.svc.List(r.Context(), filter, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// Authorization precedes query parsing.
	if err := h.svc.AuthorizeRead(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "format must be one of csv, xlsx, pdf"))
		return
	}

	table, err := h.svc.Export(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := export.Render(table, format, "AUDIT", "AUDIT LOG")
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render audit export",
			"error", err,
			"format", string(format),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render export"))
		return
	}
	httputil.WriteAttachment(w, format.ContentType(), format.Filename("audit"), body)
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	filter := models.Filter{
		Q:      strings.TrimSpace(q.Get("q")),
		Entity: strings.TrimSpace(q.Get("entity")),
		UserID: strings.TrimSpace(q.Get("userId")),
	}
	if raw := strings.TrimSpace(q.Get("action")); raw != "" {
		action, ok := models.ParseAction(raw)
		if !ok {
			return models.Filter{}, dErrors.New(dErrors.CodeBadRequest, "action must be one of CREATE, UPDATE, DELETE, PAY")
		}
		filter.Action = action
	}

	from, err := parseBound(q.Get("from"), false)
	if err != nil {
		return models.Filter{}, dErrors.New(dErrors.CodeBadRequest, "from must be an RFC 3339 timestamp or YYYY-MM-DD")
	}
	to, err := parseBound(q.Get("to"), true)
	if err != nil {
		return models.Filter{}, dErrors.New(dErrors.CodeBadRequest, "to must be an RFC 3339 timestamp or YYYY-MM-DD")
	}
	filter.From, filter.To = from, to
	return filter, nil
}

// parseBound accepts RFC 3339 or a bare date. A bare upper bound extends to
// the last instant of that day.
func parseBound(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
