// Package service implements sales, their subscriptions, invoices and the
// payment provider webhook.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	auditmodels "gestionale/internal/audit/models"
	customermodels "gestionale/internal/customer/models"
	"gestionale/internal/export"
	"gestionale/internal/mutation"
	"gestionale/internal/policy"
	productmodels "gestionale/internal/product/models"
	"gestionale/internal/sale/models"
	"gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/money"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

const entity = "Sale"

// Store persists sales. CreateWithSubscription and MarkPaid write the sale
// and its subscription atomically; Delete removes the subscription with it.
type Store interface {
	CreateWithSubscription(ctx context.Context, sale *models.Sale, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	Detail(ctx context.Context, id uuid.UUID) (*models.Detail, error)
	Update(ctx context.Context, sale *models.Sale) error
	// MarkPaid sets the sale paid and its subscription active, opening the
	// subscription when it is missing. A nil externalID keeps the current one.
	MarkPaid(ctx context.Context, id uuid.UUID, externalID *string, now time.Time) (*models.Sale, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q models.Query) ([]models.Detail, int, error)
}

type CustomerFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*customermodels.Customer, error)
}

type ProductFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*productmodels.Product, error)
}

// Authorizer is satisfied by *policy.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, resource policy.Resource, ability policy.Ability) (requestcontext.Principal, error)
}

// WebhookResult is the answer to a provider event.
type WebhookResult struct {
	OK      bool `json:"ok"`
	Ignored bool `json:"ignored,omitempty"`
}

type Service struct {
	store     Store
	customers CustomerFinder
	products  ProductFinder
	guard     Authorizer
	pipeline  *mutation.Pipeline
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, customers CustomerFinder, products ProductFinder, guard Authorizer, pipeline *mutation.Pipeline, opts ...Option) *Service {
	s := &Service{
		store:     store,
		customers: customers,
		products:  products,
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
	if _, err := s.guard.Authorize(ctx, policy.ResourceSales, policy.Read); err != nil {
		return page.Result[models.Detail]{}, err
	}
	rows, total, err := s.store.List(ctx, q)
	if err != nil {
		return page.Result[models.Detail]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sales")
	}
	return page.NewResult(q.Page, rows, total), nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*models.Detail, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceSales, policy.Read); err != nil {
		return nil, err
	}
	return s.detail(ctx, rawID)
}

func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Sale, error) {
	req.Normalize()
	var (
		customer *customermodels.Customer
		product  *productmodels.Product
	)
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Sale]{
		Resource: policy.ResourceSales,
		Ability:  policy.Create,
		Action:   auditmodels.ActionCreate,
		Entity:   entity,
		Validate: req.Validate,
		Preconditions: func(ctx context.Context) error {
			var err error
			if customer, err = s.loadCustomer(ctx, req.CustomerID); err != nil {
				return err
			}
			product, err = s.loadProduct(ctx, req.ProductID)
			return err
		},
		Apply: func(ctx context.Context) (*models.Sale, error) {
			now := requestcontext.Now(ctx).UTC()
			months := int(req.Months)
			amount, err := saleAmount(product.Monthly, months)
			if err != nil {
				return nil, err
			}
			sale := &models.Sale{
				ID:         uuid.New(),
				CustomerID: customer.ID,
				ProductID:  product.ID,
				SellerID:   seller(ctx),
				Months:     months,
				Amount:     amount,
				Status:     models.StatusPending,
				SoldAt:     req.SoldAtOr(now),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			sub := models.NewSubscription(sale.ID, months, now)
			if err := s.store.CreateWithSubscription(ctx, sale, sub); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create sale")
			}
			return sale, nil
		},
		Audit: func(sale *models.Sale) (string, map[string]any) {
			return sale.ID.String(), map[string]any{"amount": sale.Amount, "months": sale.Months}
		},
	})
}

func (s *Service) Update(ctx context.Context, rawID string, req models.UpdateRequest) (*models.Sale, error) {
	req.Normalize()
	var current *models.Sale
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Sale]{
		Resource: policy.ResourceSales,
		Ability:  policy.Update,
		Action:   auditmodels.ActionUpdate,
		Entity:   entity,
		Validate: req.Validate,
		Preconditions: func(ctx context.Context) error {
			sale, err := s.load(ctx, rawID)
			current = sale
			return err
		},
		Apply: func(ctx context.Context) (*models.Sale, error) {
			if req.Months != nil {
				product, err := s.products.FindByID(ctx, current.ProductID)
				if err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sale product")
				}
				amount, err := saleAmount(product.Monthly, int(*req.Months))
				if err != nil {
					return nil, err
				}
				current.Months = int(*req.Months)
				current.Amount = amount
			}
			if req.Status != nil {
				current.Status, _ = models.ParseStatus(*req.Status)
			}
			current.UpdatedAt = requestcontext.Now(ctx).UTC()
			if err := s.store.Update(ctx, current); err != nil {
				return nil, s.translate(err, "failed to update sale")
			}
			return current, nil
		},
		Audit: func(sale *models.Sale) (string, map[string]any) {
			return sale.ID.String(), map[string]any{"status": string(sale.Status), "months": sale.Months}
		},
	})
}

// Pay marks the sale paid and activates its subscription.
func (s *Service) Pay(ctx context.Context, rawID string) (*models.Sale, error) {
	var id uuid.UUID
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Sale]{
		Resource: policy.ResourceSales,
		Ability:  policy.Update,
		Action:   auditmodels.ActionPay,
		Entity:   entity,
		Preconditions: func(ctx context.Context) error {
			sale, err := s.load(ctx, rawID)
			if err != nil {
				return err
			}
			id = sale.ID
			return nil
		},
		Apply: func(ctx context.Context) (*models.Sale, error) {
			sale, err := s.store.MarkPaid(ctx, id, nil, requestcontext.Now(ctx).UTC())
			if err != nil {
				return nil, s.translate(err, "failed to pay sale")
			}
			return sale, nil
		},
		Audit: func(sale *models.Sale) (string, map[string]any) {
			return sale.ID.String(), map[string]any{"status": string(models.StatusPaid)}
		},
	})
}

func (s *Service) Delete(ctx context.Context, rawID string) (uuid.UUID, error) {
	var current *models.Sale
	deleted, err := mutation.Run(ctx, s.pipeline, mutation.Operation[*models.Sale]{
		Resource: policy.ResourceSales,
		Ability:  policy.Delete,
		Action:   auditmodels.ActionDelete,
		Entity:   entity,
		Preconditions: func(ctx context.Context) error {
			sale, err := s.load(ctx, rawID)
			current = sale
			return err
		},
		Apply: func(ctx context.Context) (*models.Sale, error) {
			if err := s.store.Delete(ctx, current.ID); err != nil {
				return nil, s.translate(err, "failed to delete sale")
			}
			return current, nil
		},
		Audit: func(sale *models.Sale) (string, map[string]any) {
			return sale.ID.String(), map[string]any{"amount": sale.Amount}
		},
	})
	if err != nil {
		return uuid.Nil, err
	}
	return deleted.ID, nil
}

// Invoice renders a one-page PDF invoice for the sale.
func (s *Service) Invoice(ctx context.Context, rawID string) ([]byte, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceSales, policy.Read); err != nil {
		return nil, err
	}
	d, err := s.detail(ctx, rawID)
	if err != nil {
		return nil, err
	}
	lines := []string{
		"Numero: " + d.ID.String(),
		"",
		"Cliente: " + d.Customer.Name,
		"Email: " + d.Customer.Email,
		"",
		"Prodotto: " + d.Product.Name,
		fmt.Sprintf("Mesi: %d", d.Months),
		"Prezzo mensile: EUR " + d.Product.Monthly.String(),
		"Importo: EUR " + d.Amount.String(),
		"Stato: " + string(d.Status),
		"",
		"Data: " + requestcontext.Now(ctx).Format("02/01/2006"),
	}
	body, err := export.Document("FATTURA", lines)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render invoice")
	}
	return body, nil
}

// HandleWebhook applies a verified provider event. Only invoice.paid changes
// state; other event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, event models.WebhookEvent) (WebhookResult, error) {
	if strings.TrimSpace(event.Type) != models.EventInvoicePaid {
		s.logger.InfoContext(ctx, "webhook event ignored",
			"event", event.Type,
			"request_id", requestcontext.RequestID(ctx),
		)
		return WebhookResult{OK: true, Ignored: true}, nil
	}

	var id uuid.UUID
	_, err := mutation.RunSystem(ctx, s.pipeline, mutation.Operation[*models.Sale]{
		Resource: policy.ResourceSales,
		Ability:  policy.Update,
		Action:   auditmodels.ActionUpdate,
		Entity:   entity,
		Validate: func() error {
			if strings.TrimSpace(event.Data.SaleID) == "" {
				return errors.New("saleId missing")
			}
			return nil
		},
		Preconditions: func(ctx context.Context) error {
			sale, err := s.load(ctx, event.Data.SaleID)
			if err != nil {
				return err
			}
			id = sale.ID
			return nil
		},
		Apply: func(ctx context.Context) (*models.Sale, error) {
			externalID := models.ExternalSubscriptionID(id, event.Data.SubscriptionID)
			sale, err := s.store.MarkPaid(ctx, id, &externalID, requestcontext.Now(ctx).UTC())
			if err != nil {
				return nil, s.translate(err, "failed to apply payment")
			}
			return sale, nil
		},
		Audit: func(sale *models.Sale) (string, map[string]any) {
			return sale.ID.String(), map[string]any{"via": "webhook", "event": event.Type}
		},
	})
	if err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{OK: true}, nil
}

func saleAmount(monthly money.Cents, months int) (money.Cents, error) {
	amount, err := monthly.Times(months)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "sale amount out of range")
	}
	return amount, nil
}

func (s *Service) load(ctx context.Context, rawID string) (*models.Sale, error) {
	id, err := domain.ParseID(entity, rawID)
	if err != nil {
		return nil, err
	}
	sale, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to load sale")
	}
	return sale, nil
}

func (s *Service) detail(ctx context.Context, rawID string) (*models.Detail, error) {
	id, err := domain.ParseID(entity, rawID)
	if err != nil {
		return nil, err
	}
	d, err := s.store.Detail(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to load sale")
	}
	return d, nil
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

func (s *Service) loadProduct(ctx context.Context, rawID string) (*productmodels.Product, error) {
	id, err := domain.ParseID("Product", rawID)
	if err != nil {
		return nil, err
	}
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domain.NotFound("Product")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load product")
	}
	return p, nil
}

func (s *Service) translate(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.NotFound(entity)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// seller is the acting user, recorded as the sale's seller.
func seller(ctx context.Context) *uuid.UUID {
	p, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return nil
	}
	return &id
}
