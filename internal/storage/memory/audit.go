package memory

import (
	"context"
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"

	"gestionale/internal/audit/models"
	"gestionale/pkg/platform/page"
)

// AuditStore is append-only: it has no update or delete.
type AuditStore struct {
	db *DB
}

func (s *AuditStore) Append(_ context.Context, rec *models.Record) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stored := *rec
	stored.Metadata = maps.Clone(rec.Metadata)
	stored.User = nil
	s.db.audit = append(s.db.audit, stored)
	return nil
}

func (s *AuditStore) List(_ context.Context, filter models.Filter, req page.Request) ([]models.Record, int, error) {
	rows := s.matching(filter)
	rows, total := paginate(rows, req)
	return rows, total, nil
}

func (s *AuditStore) ListAll(_ context.Context, filter models.Filter, limit int) ([]models.Record, error) {
	rows := s.matching(filter)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// matching returns the filtered records newest first with actors resolved.
func (s *AuditStore) matching(f models.Filter) []models.Record {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var rows []models.Record
	for _, rec := range s.db.audit {
		if !auditMatches(rec, f) {
			continue
		}
		rec.Metadata = maps.Clone(rec.Metadata)
		if rec.UserID != nil {
			if id, err := uuid.Parse(*rec.UserID); err == nil {
				if u, ok := s.db.users[id]; ok {
					rec.User = &models.Actor{ID: u.ID.String(), Name: u.Name, Email: u.Email}
				}
			}
		}
		rows = append(rows, rec)
	}
	newestFirst(rows, func(r models.Record) (time.Time, string) { return r.CreatedAt, r.ID })
	return rows
}

func auditMatches(rec models.Record, f models.Filter) bool {
	if f.Entity != "" && rec.Entity != f.Entity {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if f.UserID != "" && (rec.UserID == nil || *rec.UserID != f.UserID) {
		return false
	}
	if f.From != nil && rec.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && rec.CreatedAt.After(*f.To) {
		return false
	}
	if f.Q != "" {
		metadata, _ := json.Marshal(rec.Metadata)
		if !contains(f.Q, rec.Entity, rec.EntityID, string(metadata)) {
			return false
		}
	}
	return true
}
