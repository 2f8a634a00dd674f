// Package service implements support tickets.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	auditmodels "gestionale/internal/audit/models"
	customermodels "gestionale/internal/customer/models"
	identitymodels "gestionale/internal/identity/models"
	"gestionale/internal/mutation"
	"gestionale/internal/notify"
	"gestionale/internal/policy"
	"gestionale/internal/ticket/models"
	"gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

const entity = "Ticket"

// Store persists tickets. Lists are ordered by (UpdatedAt DESC, ID DESC).
type Store interface {
	Create(ctx context.Context, t *models.Ticket) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	Detail(ctx context.Context, id uuid.UUID) (*models.Detail, error)
	Update(ctx context.Context, t *models.Ticket) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q models.Query) ([]models.Detail, int, error)
}

type CustomerFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*customermodels.Customer, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identitymodels.User, error)
}

// Authorizer is satisfied by *policy.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, resource policy.Resource, ability policy.Ability) (requestcontext.Principal, error)
}

type Service struct {
	store        Store
	customers    CustomerFinder
	users        UserFinder
	guard        Authorizer
	pipeline     *mutation.Pipeline
	mailer       notify.Mailer
	supportEmail string
	logger       *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTicketNotification mails supportEmail whenever a ticket is opened.
func WithTicketNotification(mailer notify.Mailer, supportEmail string) Option {
	return func(s *Service) {
		s.mailer = mailer
		s.supportEmail = supportEmail
	}
}

func New(store Store, customers CustomerFinder, users UserFinder, guard Authorizer, pipeline *mutation.Pipeline, opts ...Option) *Service {
	s := &Service{
		store:     store,
		customers: customers,
		users:     users,
		guard:     guard,
		pipeline:  pipeline,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, q models.Query) (page.Result[models.Detail], error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceTickets, policy.Read); err != nil {
		return page.Result[models.Detail]{}, err
	}
	rows, total, err := s.store.List(ctx, q)
	if err != nil {
		return page.Result[models.Detail]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tickets")
	}
	return page.NewResult(q.Page, rows, total), nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*models.Detail, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceTickets, policy.Read); err != nil {
		return nil, err
	}
	id, err := domain.ParseID(entity, rawID)
	if err != nil {
		return nil, err
	}
	d, err := s.store.Detail(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load ticket")
	}
	return d, nil
}

func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Ticket, error) {
	req.Normalize()
	var (
		customer *customermodels.Customer
		assignee *identitymodels.User
	)
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Ticket]{
		Resource: policy.ResourceTickets,
		Ability:  policy.Create,
		Action:   auditmodels.ActionCreate,
		Entity:   entity,
		Validate: req.Validate,
		Preconditions: func(ctx context.Context) error {
			var err error
			if customer, err = s.loadCustomer(ctx, req.CustomerID); err != nil {
				return err
			}
			assignee, err = s.loadAssignee(ctx, req.AssigneeID)
			return err
		},
		Apply: func(ctx context.Context) (*models.Ticket, error) {
			now := requestcontext.Now(ctx).UTC()
			t := &models.Ticket{
				ID:          uuid.New(),
				CustomerID:  customer.ID,
				Title:       req.Title,
				Description: req.Description,
				Status:      models.StatusOpen,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if assignee != nil {
				t.AssigneeID = &assignee.ID
			}
			if err := s.store.Create(ctx, t); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ticket")
			}
			return t, nil
		},
		Audit: func(t *models.Ticket) (string, map[string]any) {
			return t.ID.String(), map[string]any{"assigneeId": assigneeValue(t.AssigneeID), "status": string(t.Status)}
		},
		Notify: func(ctx context.Context, t *models.Ticket) error {
			if s.mailer == nil || s.supportEmail == "" {
				return nil
			}
			assigneeEmail := ""
			if assignee != nil {
				assigneeEmail = assignee.Email
			}
			return s.mailer.Send(ctx, notify.NewTicket(s.supportEmail, customer.Name, t.Title, assigneeEmail))
		},
	})
}

func (s *Service) Update(ctx context.Context, rawID string, req models.UpdateRequest) (*models.Ticket, error) {
	req.Normalize()
	var (
		current  *models.Ticket
		assignee *identitymodels.User
	)
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Ticket]{
		Resource: policy.ResourceTickets,
		Ability:  policy.Update,
		Action:   auditmodels.ActionUpdate,
		Entity:   entity,
		Validate: req.Validate,
		Preconditions: func(ctx context.Context) error {
			t, err := s.load(ctx, rawID)
			if err != nil {
				return err
			}
			current = t
			assignee, err = s.loadAssignee(ctx, req.AssigneeID)
			return err
		},
		Apply: func(ctx context.Context) (*models.Ticket, error) {
			req.Apply(current)
			if req.AssigneeID != nil {
				current.AssigneeID = nil
				if assignee != nil {
					current.AssigneeID = &assignee.ID
				}
			}
			current.UpdatedAt = requestcontext.Now(ctx).UTC()
			if err := s.store.Update(ctx, current); err != nil {
				return nil, translate(err, "failed to update ticket")
			}
			return current, nil
		},
		Audit: func(t *models.Ticket) (string, map[string]any) {
			return t.ID.String(), map[string]any{"status": string(t.Status), "assigneeId": assigneeValue(t.AssigneeID)}
		},
	})
}

func (s *Service) Delete(ctx context.Context, rawID string) (uuid.UUID, error) {
	var current *models.Ticket
	deleted, err := mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Ticket]{
		Resource: policy.ResourceTickets,
		Ability:  policy.Delete,
		Action:   auditmodels.ActionDelete,
		Entity:   entity,
		Preconditions: func(ctx context.Context) error {
			t, err := s.load(ctx, rawID)
			current = t
			return err
		},
		Apply: func(ctx context.Context) (*models.Ticket, error) {
			if err := s.store.Delete(ctx, current.ID); err != nil {
				return nil, translate(err, "failed to delete ticket")
			}
			return current, nil
		},
		Audit: func(t *models.Ticket) (string, map[string]any) {
			return t.ID.String(), map[string]any{"title": t.Title}
		},
	})
	if err != nil {
		return uuid.Nil, err
	}
	return deleted.ID, nil
}

func (s *Service) load(ctx context.Context, rawID string) (*models.Ticket, error) {
	id, err := domain.ParseID(entity, rawID)
	if err != nil {
		return nil, err
	}
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load ticket")
	}
	return t, nil
}

func (s *Service) loadCustomer(ctx context.Context, rawID string) (*customermodels.Customer, error) {
	id, err := domain.ParseID("Customer", rawID)
	if err != nil {
		return nil, err
	}
	c, err := s.customers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domain.NotFound("Customer")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load customer")
	}
	return c, nil
}

// loadAssignee resolves an optional assignee; blank input yields nil.
func (s *Service) loadAssignee(ctx context.Context, rawID *string) (*identitymodels.User, error) {
	id, err := domain.ParseOptionalID("Assignee", rawID)
	if err != nil || id == nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, *id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domain.NotFound("Assignee")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load assignee")
	}
	return u, nil
}

func translate(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.NotFound(entity)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func assigneeValue(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
