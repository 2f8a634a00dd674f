package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gestionale/internal/sale/models"
	"gestionale/pkg/platform/sentinel"
)

type SaleStore struct {
	db *DB
}

// CreateWithSubscription checks both references and writes sale and
// subscription under one lock.
func (s *SaleStore) CreateWithSubscription(_ context.Context, sale *models.Sale, sub *models.Subscription) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.customers[sale.CustomerID]; !ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.db.products[sale.ProductID]; !ok {
		return sentinel.ErrConflict
	}
	s.db.sales[sale.ID] = *sale
	s.db.subscriptions[sale.ID] = *sub
	return nil
}

func (s *SaleStore) FindByID(_ context.Context, id uuid.UUID) (*models.Sale, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	sale, ok := s.db.sales[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &sale, nil
}

func (s *SaleStore) Detail(_ context.Context, id uuid.UUID) (*models.Detail, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	sale, ok := s.db.sales[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d := s.db.saleDetail(sale)
	if sub, ok := s.db.subscriptions[id]; ok {
		d.Subscription = &sub
	}
	return &d, nil
}

func (s *SaleStore) Update(_ context.Context, sale *models.Sale) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.sales[sale.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.db.sales[sale.ID] = *sale
	return nil
}

func (s *SaleStore) MarkPaid(_ context.Context, id uuid.UUID, externalID *string, now time.Time) (*models.Sale, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sale, ok := s.db.sales[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	sale.Status = models.StatusPaid
	sale.UpdatedAt = now

	sub, ok := s.db.subscriptions[id]
	if !ok {
		sub = *models.NewSubscription(id, sale.Months, now)
	}
	sub.Status = models.SubscriptionActive
	sub.UpdatedAt = now
	if externalID != nil {
		v := *externalID
		sub.ExternalID = &v
	}

	s.db.sales[id] = sale
	s.db.subscriptions[id] = sub
	return &sale, nil
}

// Delete removes the sale together with its subscription.
func (s *SaleStore) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.sales[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.db.sales, id)
	delete(s.db.subscriptions, id)
	return nil
}

func (s *SaleStore) List(_ context.Context, q models.Query) ([]models.Detail, int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var rows []models.Detail
	for _, sale := range s.db.sales {
		if !in(sale.Status, q.Filter.Statuses) {
			continue
		}
		d := s.db.saleDetail(sale)
		if q.Filter.Q != "" && !contains(q.Filter.Q, d.Customer.Name, d.Product.Name) {
			continue
		}
		rows = append(rows, d)
	}
	rows, total := paginate(sortedSales(rows), q.Page)
	return rows, total, nil
}

// saleDetail joins customer and product. References are enforced on write,
// so both exist. Caller holds the lock.
func (db *DB) saleDetail(sale models.Sale) models.Detail {
	c := db.customers[sale.CustomerID]
	p := db.products[sale.ProductID]
	return models.Detail{Sale: sale, Customer: &c, Product: &p}
}

func sortedSales(rows []models.Detail) []models.Detail {
	newestFirst(rows, func(d models.Detail) (time.Time, string) { return d.CreatedAt, d.ID.String() })
	return rows
}
