package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	customermodels "gestionale/internal/customer/models"
	productmodels "gestionale/internal/product/models"
	"gestionale/pkg/platform/sentinel"
)

type CustomerStore struct {
	db *DB
}

func (s *CustomerStore) Create(_ context.Context, c *customermodels.Customer) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.emailTaken(c.ID, c.Email) {
		return sentinel.ErrConflict
	}
	s.db.customers[c.ID] = *c
	return nil
}

func (s *CustomerStore) FindByID(_ context.Context, id uuid.UUID) (*customermodels.Customer, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	c, ok := s.db.customers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *CustomerStore) Update(_ context.Context, c *customermodels.Customer) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.customers[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.db.emailTaken(c.ID, c.Email) {
		return sentinel.ErrConflict
	}
	s.db.customers[c.ID] = *c
	return nil
}

// Delete refuses customers still referenced by a sale or a ticket.
func (s *CustomerStore) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.customers[id]; !ok {
		return sentinel.ErrNotFound
	}
	for _, sale := range s.db.sales {
		if sale.CustomerID == id {
			return sentinel.ErrConflict
		}
	}
	for _, t := range s.db.tickets {
		if t.CustomerID == id {
			return sentinel.ErrConflict
		}
	}
	delete(s.db.customers, id)
	return nil
}

func (s *CustomerStore) List(_ context.Context, q customermodels.Query) ([]customermodels.Customer, int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var rows []customermodels.Customer
	for _, c := range s.db.customers {
		if q.Filter.Q != "" && !contains(q.Filter.Q, c.Name, c.Email, deref(c.Phone)) {
			continue
		}
		if !in(c.Status, q.Filter.Statuses) {
			continue
		}
		rows = append(rows, c)
	}
	rows, total := paginate(s.db.sortedCustomers(rows), q.Page)
	return rows, total, nil
}

// emailTaken reports whether another customer already uses email. Caller holds the lock.
func (db *DB) emailTaken(id uuid.UUID, email string) bool {
	for _, c := range db.customers {
		if c.ID != id && strings.EqualFold(c.Email, email) {
			return true
		}
	}
	return false
}

func (db *DB) sortedCustomers(rows []customermodels.Customer) []customermodels.Customer {
	newestFirst(rows, func(c customermodels.Customer) (time.Time, string) { return c.CreatedAt, c.ID.String() })
	return rows
}

type ProductStore struct {
	db *DB
}

func (s *ProductStore) Create(_ context.Context, p *productmodels.Product) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.products[p.ID] = *p
	return nil
}

func (s *ProductStore) FindByID(_ context.Context, id uuid.UUID) (*productmodels.Product, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.products[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *ProductStore) Update(_ context.Context, p *productmodels.Product) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.products[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.db.products[p.ID] = *p
	return nil
}

// Delete refuses products still referenced by a sale.
func (s *ProductStore) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.products[id]; !ok {
		return sentinel.ErrNotFound
	}
	for _, sale := range s.db.sales {
		if sale.ProductID == id {
			return sentinel.ErrConflict
		}
	}
	delete(s.db.products, id)
	return nil
}

func (s *ProductStore) List(_ context.Context, q productmodels.Query) ([]productmodels.Product, int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	f := q.Filter
	var rows []productmodels.Product
	for _, p := range s.db.products {
		switch {
		case f.Q != "" && !contains(f.Q, p.Name, deref(p.Description)):
			continue
		case !in(p.Kind, f.Kinds):
			continue
		case f.Active != nil && p.IsActive != *f.Active:
			continue
		case f.Min != nil && p.Monthly < *f.Min:
			continue
		case f.Max != nil && p.Monthly > *f.Max:
			continue
		}
		rows = append(rows, p)
	}
	rows, total := paginate(s.db.sortedProducts(rows), q.Page)
	return rows, total, nil
}

func (db *DB) sortedProducts(rows []productmodels.Product) []productmodels.Product {
	newestFirst(rows, func(p productmodels.Product) (time.Time, string) { return p.CreatedAt, p.ID.String() })
	return rows
}
