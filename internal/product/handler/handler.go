package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gestionale/internal/product/models"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/money"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/platform/page"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the product operations exposed over HTTP.
type Service interface {
	List(ctx context.Context, q models.Query) (page.Result[models.Product], error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, req models.CreateRequest) (*models.Product, error)
	Update(ctx context.Context, id string, req models.UpdateRequest) (*models.Product, error)
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
	r.Get("/products", h.handleList)
	r.Post("/products", h.handleCreate)
	r.Get("/products/{id}", h.handleGet)
	r.Patch("/products/{id}", h.handleUpdate)
	r.Delete("/products/{id}", h.handleDelete)
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
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
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
	values := r.URL.Query()
	q := models.Query{
		Filter: models.Filter{Q: strings.TrimSpace(values.Get("q"))},
		Page:   page.New(httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "limit", page.DefaultLimit)),
	}
	for _, raw := range httputil.QueryList(r, "kind") {
		k, ok := models.ParseKind(raw)
		if !ok {
			return models.Query{}, dErrors.New(dErrors.CodeBadRequest, "kind must be one of SaaS, Platform")
		}
		q.Filter.Kinds = append(q.Filter.Kinds, k)
	}
	if raw := strings.TrimSpace(values.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return models.Query{}, dErrors.New(dErrors.CodeBadRequest, "active must be true or false")
		}
		q.Filter.Active = &active
	}
	var err error
	if q.Filter.Min, err = parseBound(values.Get("min"), "min"); err != nil {
		return models.Query{}, err
	}
	if q.Filter.Max, err = parseBound(values.Get("max"), "max"); err != nil {
		return models.Query{}, err
	}
	return q, nil
}

func parseBound(raw, name string) (*money.Cents, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := money.Parse(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, name+" must be a number")
	}
	return &v, nil
}
