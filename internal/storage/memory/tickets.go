package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gestionale/internal/ticket/models"
	"gestionale/pkg/platform/sentinel"
)

type TicketStore struct {
	db *DB
}

func (s *TicketStore) Create(_ context.Context, t *models.Ticket) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.customers[t.CustomerID]; !ok {
		return sentinel.ErrConflict
	}
	s.db.tickets[t.ID] = *t
	return nil
}

func (s *TicketStore) FindByID(_ context.Context, id uuid.UUID) (*models.Ticket, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	t, ok := s.db.tickets[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &t, nil
}

func (s *TicketStore) Detail(_ context.Context, id uuid.UUID) (*models.Detail, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	t, ok := s.db.tickets[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d := s.db.ticketDetail(t)
	return &d, nil
}

func (s *TicketStore) Update(_ context.Context, t *models.Ticket) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.tickets[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.db.tickets[t.ID] = *t
	return nil
}

func (s *TicketStore) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.tickets[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.db.tickets, id)
	return nil
}

// List orders tickets by last update, newest first.
func (s *TicketStore) List(_ context.Context, q models.Query) ([]models.Detail, int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	f := q.Filter
	var rows []models.Detail
	for _, t := range s.db.tickets {
		if !in(t.Status, f.Statuses) {
			continue
		}
		if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
			continue
		}
		d := s.db.ticketDetail(t)
		if f.Q != "" && !contains(f.Q, t.Title, d.Customer.Name) {
			continue
		}
		rows = append(rows, d)
	}
	newestFirst(rows, func(d models.Detail) (time.Time, string) { return d.UpdatedAt, d.ID.String() })
	rows, total := paginate(rows, q.Page)
	return rows, total, nil
}

// ticketDetail resolves customer and assignee. An assignee whose user no
// longer exists is dropped. Caller holds the lock.
func (db *DB) ticketDetail(t models.Ticket) models.Detail {
	c := db.customers[t.CustomerID]
	d := models.Detail{
		Ticket:   t,
		Customer: &models.Party{ID: c.ID, Name: c.Name, Email: c.Email},
	}
	if t.AssigneeID != nil {
		if u, ok := db.users[*t.AssigneeID]; ok {
			d.Assignee = &models.Party{ID: u.ID, Name: u.Name, Email: u.Email}
		} else {
			d.AssigneeID = nil
		}
	}
	return d
}
