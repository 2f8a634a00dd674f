// Package service appends audit records and serves the read side of the trail.
package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"gestionale/internal/audit/models"
	"gestionale/internal/export"
	"gestionale/internal/policy"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/requestcontext"
)

// Store persists audit records. Reads return records newest first,
// ordered by (CreatedAt DESC, ID DESC), with the actor projection filled in.
type Store interface {
	Append(ctx context.Context, rec *models.Record) error
	List(ctx context.Context, filter models.Filter, req page.Request) ([]models.Record, int, error)
	ListAll(ctx context.Context, filter models.Filter, limit int) ([]models.Record, error)
}

// Authorizer is satisfied by *policy.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, resource policy.Resource, ability policy.Ability) (requestcontext.Principal, error)
}

// Publisher mirrors records to an external stream without blocking.
type Publisher interface {
	Publish(rec models.Record)
}

// ExportColumns is the column order of every audit export.
var ExportColumns = []string{"id", "createdAt", "user", "action", "entity", "entityId", "metadata"}

type Service struct {
	store     Store
	guard     Authorizer
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	entropy io.Reader
	last    time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// New constructs a Service.
func New(store Store, guard Authorizer, opts ...Option) *Service {
	s := &Service{
		store:   store,
		guard:   guard,
		logger:  slog.New(slog.DiscardHandler),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry. CreatedAt comes from the request clock and never
// goes backwards, and the ULID id keeps records with equal timestamps in
// append order.
func (s *Service) Record(ctx context.Context, entry models.Entry) (*models.Record, error) {
	if entry.Entity == "" || entry.EntityID == "" {
		return nil, errors.New("audit entry requires entity and entity id")
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	rec := &models.Record{
		UserID:   entry.UserID,
		Action:   entry.Action,
		Entity:   entry.Entity,
		EntityID: entry.EntityID,
		Metadata: metadata,
	}
	if err := s.stamp(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.store.Append(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit record")
	}
	if s.publisher != nil {
		s.publisher.Publish(*rec)
	}
	return rec, nil
}

func (s *Service) stamp(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	if now.Before(s.last) {
		now = s.last
	}
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate audit id")
	}
	s.last = now
	rec.ID = id.String()
	rec.CreatedAt = now
	return nil
}

// AuthorizeRead checks audit:read for the caller without reading the store.
func (s *Service) AuthorizeRead(ctx context.Context) error {
	_, err := s.guard.Authorize(ctx, policy.ResourceAudit, policy.Read)
	return err
}

// List returns one page of records matching filter.
func (s *Service) List(ctx context.Context, filter models.Filter, req page.Request) (page.Result[models.Record], error) {
	if err := s.AuthorizeRead(ctx); err != nil {
		return page.Result[models.Record]{}, err
	}
	rows, total, err := s.store.List(ctx, filter, req)
	if err != nil {
		return page.Result[models.Record]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records")
	}
	return page.NewResult(req, rows, total), nil
}

// Export returns up to export.MaxRows records matching filter as a table.
func (s *Service) Export(ctx context.Context, filter models.Filter) (export.Table, error) {
	if err := s.AuthorizeRead(ctx); err != nil {
		return export.Table{}, err
	}
	rows, err := s.store.ListAll(ctx, filter, export.MaxRows)
	if err != nil {
		return export.Table{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to export audit records")
	}

	table := export.Table{Columns: ExportColumns, Rows: make([]map[string]any, 0, len(rows))}
	for _, r := range rows {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return export.Table{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode audit metadata")
		}
		table.Rows = append(table.Rows, map[string]any{
			"id":        r.ID,
			"createdAt": r.CreatedAt,
			"user":      r.Label(),
			"action":    string(r.Action),
			"entity":    r.Entity,
			"entityId":  r.EntityID,
			"metadata":  string(metadata),
		})
	}
	return table, nil
}
