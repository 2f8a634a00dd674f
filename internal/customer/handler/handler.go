package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gestionale/internal/customer/models"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/platform/page"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the customer operations exposed over HTTP.
type Service interface {
	List(ctx context.Context, q models.Query) (page.Result[models.Customer], error)
	Get(ctx context.Context, id string) (*models.Customer, error)
	Create(ctx context.Context, req models.CreateRequest) (*models.Customer, error)
	Update(ctx context.Context, id string, req models.UpdateRequest) (*models.Customer, error)
	Delete(ctx context.Context, id string) (uuid.UUID, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/customers", h.handleList)
	r.Post("/customers", h.handleCreate)
	r.Get("/customers/{id}", h.handleGet)
	r.Patch("/customers/{id}", h.handleUpdate)
	r.Delete("/customers/{id}", h.handleDelete)
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
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func parseQuery(r *http.Request) (models.Query, error) {
	q := models.Query{
		Filter: models.Filter{Q: strings.TrimSpace(r.URL.Query().Get("q"))},
		Page:   page.New(httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "limit", page.DefaultLimit)),
	}
	for _, raw := range httputil.QueryList(r, "status") {
		st, ok := models.ParseStatus(raw)
		if !ok {
			return models.Query{}, dErrors.New(dErrors.CodeBadRequest, "status must be one of lead, active, churn")
		}
		q.Filter.Statuses = append(q.Filter.Statuses, st)
	}
	return q, nil
}
