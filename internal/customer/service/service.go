// Package service implements customer records on top of the mutation pipeline.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	auditmodels "gestionale/internal/audit/models"
	"gestionale/internal/customer/models"
	"gestionale/internal/mutation"
	"gestionale/internal/notify"
	"gestionale/internal/policy"
	"gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

const entity = "Customer"

// Store persists customers. Delete returns sentinel.ErrConflict while sales or
// tickets still reference the customer; Create and Update return it for a
// duplicate email.
type Store interface {
	Create(ctx context.Context, c *models.Customer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	Update(ctx context.Context, c *models.Customer) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q models.Query) ([]models.Customer, int, error)
}

// Authorizer is satisfied by *policy.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, resource policy.Resource, ability policy.Ability) (requestcontext.Principal, error)
}

type Service struct {
	store      Store
	guard      Authorizer
	pipeline   *mutation.Pipeline
	mailer     notify.Mailer
	salesEmail string
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLeadNotification mails salesEmail whenever a lead is created.
func WithLeadNotification(mailer notify.Mailer, salesEmail string) Option {
	return func(s *Service) {
		s.mailer = mailer
		s.salesEmail = salesEmail
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

func (s *Service) List(ctx context.Context, q models.Query) (page.Result[models.Customer], error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceCustomers, policy.Read); err != nil {
		return page.Result[models.Customer]{}, err
	}
	rows, total, err := s.store.List(ctx, q)
	if err != nil {
		return page.Result[models.Customer]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list customers")
	}
	return page.NewResult(q.Page, rows, total), nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*models.Customer, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceCustomers, policy.Read); err != nil {
		return nil, err
	}
	return s.load(ctx, rawID)
}

func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Customer, error) {
	req.Normalize()
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Customer]{
		Resource: policy.ResourceCustomers,
		Ability:  policy.Create,
		Action:   auditmodels.ActionCreate,
		Entity:   entity,
		Validate: req.Validate,
		Apply: func(ctx context.Context) (*models.Customer, error) {
			now := requestcontext.Now(ctx).UTC()
			status, _ := models.ParseStatus(req.Status)
			c := &models.Customer{
				ID:        uuid.New(),
				Name:      req.Name,
				Email:     req.Email,
				Phone:     req.Phone,
				Status:    status,
				JoinedAt:  req.JoinedAtTime(),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.store.Create(ctx, c); err != nil {
				return nil, translate(err, "failed to create customer")
			}
			return c, nil
		},
		Audit: func(c *models.Customer) (string, map[string]any) {
			return c.ID.String(), map[string]any{"email": c.Email, "status": string(c.Status)}
		},
		Notify: s.notifyLead,
	})
}

func (s *Service) Update(ctx context.Context, rawID string, req models.UpdateRequest) (*models.Customer, error) {
	req.Normalize()
	var current *models.Customer
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Customer]{
		Resource: policy.ResourceCustomers,
		Ability:  policy.Update,
		Action:   auditmodels.ActionUpdate,
		Entity:   entity,
		Validate: req.Validate,
		Preconditions: func(ctx context.Context) error {
			c, err := s.load(ctx, rawID)
			current = c
			return err
		},
		Apply: func(ctx context.Context) (*models.Customer, error) {
			req.Apply(current)
			current.UpdatedAt = requestcontext.Now(ctx).UTC()
			if err := s.store.Update(ctx, current); err != nil {
				return nil, translate(err, "failed to update customer")
			}
			return current, nil
		},
		Audit: func(c *models.Customer) (string, map[string]any) {
			return c.ID.String(), map[string]any{"status": string(c.Status)}
		},
	})
}

func (s *Service) Delete(ctx context.Context, rawID string) (uuid.UUID, error) {
	var current *models.Customer
	deleted, err := mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Customer]{
		Resource: policy.ResourceCustomers,
		Ability:  policy.Delete,
		Action:   auditmodels.ActionDelete,
		Entity:   entity,
		Preconditions: func(ctx context.Context) error {
			c, err := s.load(ctx, rawID)
			current = c
			return err
		},
		Apply: func(ctx context.Context) (*models.Customer, error) {
			if err := s.store.Delete(ctx, current.ID); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return nil, dErrors.New(dErrors.CodeValidation, "customer still has sales or tickets")
				}
				return nil, translate(err, "failed to delete customer")
			}
			return current, nil
		},
		Audit: func(c *models.Customer) (string, map[string]any) {
			return c.ID.String(), map[string]any{"email": c.Email}
		},
	})
	if err != nil {
		return uuid.Nil, err
	}
	return deleted.ID, nil
}

func (s *Service) notifyLead(ctx context.Context, c *models.Customer) error {
	if s.mailer == nil || s.salesEmail == "" || c.Status != models.StatusLead {
		return nil
	}
	return s.mailer.Send(ctx, notify.NewLead(s.salesEmail, c.Name, c.Email))
}

func (s *Service) load(ctx context.Context, rawID string) (*models.Customer, error) {
	id, err := domain.ParseID(entity, rawID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domain.NotFound(entity)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load customer")
	}
	return c, nil
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeValidation, "email already in use")
	case errors.Is(err, sentinel.ErrNotFound):
		return domain.NotFound(entity)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
