package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gestionale/internal/sale/models"
	"gestionale/internal/sale/service"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/platform/middleware/signature"
	"gestionale/pkg/platform/page"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the sale operations exposed over HTTP.
type Service interface {
	List(ctx context.Context, q models.Query) (page.Result[models.Detail], error)
	Get(ctx context.Context, id string) (*models.Detail, error)
	Create(ctx context.Context, req models.CreateRequest) (*models.Sale, error)
	Update(ctx context.Context, id string, req models.UpdateRequest) (*models.Sale, error)
	Pay(ctx context.Context, id string) (*models.Sale, error)
	Delete(ctx context.Context, id string) (uuid.UUID, error)
	Invoice(ctx context.Context, id string) ([]byte, error)
	HandleWebhook(ctx context.Context, event models.WebhookEvent) (service.WebhookResult, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/sales", h.handleList)
	r.Post("/sales", h.handleCreate)
	r.Get("/sales/{id}", h.handleGet)
	r.Patch("/sales/{id}", h.handleUpdate)
	r.Delete("/sales/{id}", h.handleDelete)
	r.Post("/sales/{id}/pay", h.handlePay)
	r.Get("/sales/{id}/invoice", h.handleInvoice)
}

// RegisterWebhook mounts the payment provider endpoint behind signature verification.
func (h *Handler) RegisterWebhook(r chi.Router, secret string) {
	r.With(signature.RequireSignature(secret, h.logger)).Post("/webhooks/payments", h.handleWebhook)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.svc.List(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sale, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sale, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	sale, err := h.svc.Pay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (h *Handler) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := h.svc.Invoice(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteAttachment(w, "application/pdf", "fattura-"+id+".pdf", body)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var event models.WebhookEvent
	if err := httputil.DecodeJSON(r, &event); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.svc.HandleWebhook(r.Context(), event)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func parseQuery(r *http.Request) (models.Query, error) {
	q := models.Query{
		Filter: models.Filter{Q: strings.TrimSpace(r.URL.Query().Get("q"))},
		Page:   page.New(httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "limit", page.DefaultLimit)),
	}
	for _, raw := range httputil.QueryList(r, "status") {
		st, ok := models.ParseStatus(raw)
		if !ok {
			return models.Query{}, dErrors.New(dErrors.CodeBadRequest, "status must be one of pending, paid, failed")
		}
		q.Filter.Statuses = append(q.Filter.Statuses, st)
	}
	return q, nil
}
