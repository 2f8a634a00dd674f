package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"gestionale/internal/audit/models"
	"gestionale/pkg/platform/page"
)

const auditSelect = `
	SELECT a.id, a.user_id, a.action, a.entity, a.entity_id, a.metadata, a.created_at,
	       u.id, u.name, u.email
	FROM audit_records a
	LEFT JOIN users u ON u.id = a.user_id`

// AuditStore is append-only: it has no update or delete.
type AuditStore struct {
	base
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{base{db: db}}
}

func (s *AuditStore) Append(ctx context.Context, rec *models.Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	var userID uuid.NullUUID
	if rec.UserID != nil {
		id, err := uuid.Parse(*rec.UserID)
		if err != nil {
			return fmt.Errorf("audit actor %q: %w", *rec.UserID, err)
		}
		userID = uuid.NullUUID{UUID: id, Valid: true}
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_records (id, user_id, action, entity, entity_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, userID, string(rec.Action), rec.Entity, rec.EntityID, metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", mapError(err))
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, filter models.Filter, req page.Request) ([]models.Record, int, error) {
	c := auditConditions(filter)
	total, err := c.count(ctx, s.q(ctx), "audit_records a")
	if err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}
	query := auditSelect + c.where() + ` ORDER BY a.created_at DESC, a.id DESC` + c.page(req.Limit, req.Offset())
	out, err := s.selectRecords(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *AuditStore) ListAll(ctx context.Context, filter models.Filter, limit int) ([]models.Record, error) {
	c := auditConditions(filter)
	query := auditSelect + c.where() + ` ORDER BY a.created_at DESC, a.id DESC LIMIT ` + c.arg(limit)
	return s.selectRecords(ctx, query, c.args...)
}

func auditConditions(f models.Filter) *conditions {
	c := &conditions{}
	if f.Q != "" {
		p := c.arg(likePattern(f.Q))
		c.and("(a.entity ILIKE " + p + " OR a.entity_id ILIKE " + p + " OR a.metadata::text ILIKE " + p + ")")
	}
	if f.Entity != "" {
		c.and("a.entity = " + c.arg(f.Entity))
	}
	if f.Action != "" {
		c.and("a.action = " + c.arg(string(f.Action)))
	}
	if f.UserID != "" {
		c.and("a.user_id::text = " + c.arg(f.UserID))
	}
	if f.From != nil {
		c.and("a.created_at >= " + c.arg(*f.From))
	}
	if f.To != nil {
		c.and("a.created_at <= " + c.arg(*f.To))
	}
	return c
}

func (s *AuditStore) selectRecords(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			rec       models.Record
			userID    uuid.NullUUID
			action    string
			metadata  []byte
			actorID   uuid.NullUUID
			actorName sql.NullString
			actorMail sql.NullString
		)
		if err := rows.Scan(&rec.ID, &userID, &action, &rec.Entity, &rec.EntityID, &metadata, &rec.CreatedAt,
			&actorID, &actorName, &actorMail); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = models.Action(action)
		if userID.Valid {
			id := userID.UUID.String()
			rec.UserID = &id
		}
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
		if actorID.Valid {
			rec.User = &models.Actor{ID: actorID.UUID.String(), Name: actorName.String, Email: actorMail.String}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
