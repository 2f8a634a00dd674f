// Package service implements the product catalog.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	auditmodels "gestionale/internal/audit/models"
	"gestionale/internal/mutation"
	"gestionale/internal/policy"
	"gestionale/internal/product/models"
	"gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

const entity = "Product"

// Store persists products. Delete returns sentinel.ErrConflict while a sale
// references the product.
type Store interface {
	Create(ctx context.Context, p *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q models.Query) ([]models.Product, int, error)
}

// Authorizer is satisfied by *policy.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, resource policy.Resource, ability policy.Ability) (requestcontext.Principal, error)
}

type Service struct {
	store    Store
	guard    Authorizer
	pipeline *mutation.Pipeline
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, guard Authorizer, pipeline *mutation.Pipeline, opts ...Option) *Service {
	s := &Service{
		store:    store,
		guard:    guard,
		pipeline: pipeline,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, q models.Query) (page.Result[models.Product], error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceProducts, policy.Read); err != nil {
		return page.Result[models.Product]{}, err
	}
	rows, total, err := s.store.List(ctx, q)
	if err != nil {
		return page.Result[models.Product]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list products")
	}
	return page.NewResult(q.Page, rows, total), nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*models.Product, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceProducts, policy.Read); err != nil {
		return nil, err
	}
	return s.load(ctx, rawID)
}

func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Product, error) {
	req.Normalize()
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Product]{
		Resource: policy.ResourceProducts,
		Ability:  policy.Create,
		Action:   auditmodels.ActionCreate,
		Entity:   entity,
		Validate: req.Validate,
		Apply: func(ctx context.Context) (*models.Product, error) {
			now := requestcontext.Now(ctx).UTC()
			kind, _ := models.ParseKind(req.Kind)
			p := &models.Product{
				ID:          uuid.New(),
				Name:        req.Name,
				Description: req.Description,
				Monthly:     *req.Monthly,
				Kind:        kind,
				IsActive:    *req.IsActive,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.store.Create(ctx, p); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create product")
			}
			return p, nil
		},
		Audit: func(p *models.Product) (string, map[string]any) {
			return p.ID.String(), map[string]any{"monthly": p.Monthly, "kind": string(p.Kind)}
		},
	})
}

func (s *Service) Update(ctx context.Context, rawID string, req models.UpdateRequest) (*models.Product, error) {
	req.Normalize()
	var current *models.Product
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Product]{
		Resource: policy.ResourceProducts,
		Ability:  policy.Update,
		Action:   auditmodels.ActionUpdate,
		Entity:   entity,
		Validate: req.Validate,
		Preconditions: func(ctx context.Context) error {
			p, err := s.load(ctx, rawID)
			current = p
			return err
		},
		Apply: func(ctx context.Context) (*models.Product, error) {
			req.Apply(current)
			current.UpdatedAt = requestcontext.Now(ctx).UTC()
			if err := s.store.Update(ctx, current); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return nil, domain.NotFound(entity)
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update product")
			}
			return current, nil
		},
		Audit: func(p *models.Product) (string, map[string]any) {
			return p.ID.String(), map[string]any{"kind": string(p.Kind), "isActive": p.IsActive}
		},
	})
}

func (s *Service) Delete(ctx context.Context, rawID string) (uuid.UUID, error) {
	var current *models.Product
	deleted, err := mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Product]{
		Resource: policy.ResourceProducts,
		Ability:  policy.Delete,
		Action:   auditmodels.ActionDelete,
		Entity:   entity,
		Preconditions: func(ctx context.Context) error {
			p, err := s.load(ctx, rawID)
			current = p
			return err
		},
		Apply: func(ctx context.Context) (*models.Product, error) {
			if err := s.store.Delete(ctx, current.ID); err != nil {
				switch {
				case errors.Is(err, sentinel.ErrConflict):
					return nil, dErrors.New(dErrors.CodeValidation, "product is referenced by sales")
				case errors.Is(err, sentinel.ErrNotFound):
					return nil, domain.NotFound(entity)
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete product")
			}
			return current, nil
		},
		Audit: func(p *models.Product) (string, map[string]any) {
			return p.ID.String(), map[string]any{"name": p.Name}
		},
	})
	if err != nil {
		return uuid.Nil, err
	}
	return deleted.ID, nil
}

func (s *Service) load(ctx context.Context, rawID string) (*models.Product, error) {
	id, err := domain.ParseID(entity, rawID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domain.NotFound(entity)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load product")
	}
	return p, nil
}
