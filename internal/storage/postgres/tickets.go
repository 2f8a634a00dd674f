package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gestionale/internal/ticket/models"
)

const ticketColumns = `id, customer_id, title, description, status, assignee_id, created_at, updated_at`

const ticketDetailSelect = `
	SELECT t.id, t.customer_id, t.title, t.description, t.status, t.assignee_id, t.created_at, t.updated_at,
	       c.name, c.email, u.name, u.email
	FROM tickets t
	JOIN customers c ON c.id = t.customer_id
	LEFT JOIN users u ON u.id = t.assignee_id`

const ticketFrom = `tickets t JOIN customers c ON c.id = t.customer_id`

type TicketStore struct {
	base
}

func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{base{db: db}}
}

func (s *TicketStore) Create(ctx context.Context, t *models.Ticket) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.CustomerID, t.Title, nullString(t.Description), string(t.Status), nullUUID(t.AssigneeID), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", mapError(err))
	}
	return nil
}

func (s *TicketStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", notFound(err))
	}
	return t, nil
}

func (s *TicketStore) Detail(ctx context.Context, id uuid.UUID) (*models.Detail, error) {
	row := s.q(ctx).QueryRowContext(ctx, ticketDetailSelect+` WHERE t.id = $1`, id)
	d, err := scanTicketDetail(row)
	if err != nil {
		return nil, fmt.Errorf("find ticket detail: %w", notFound(err))
	}
	return d, nil
}

func (s *TicketStore) Update(ctx context.Context, t *models.Ticket) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE tickets SET title = $2, description = $3, status = $4, assignee_id = $5, updated_at = $6
		WHERE id = $1`,
		t.ID, t.Title, nullString(t.Description), string(t.Status), nullUUID(t.AssigneeID), t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", mapError(err))
	}
	return affected(res)
}

func (s *TicketStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", mapError(err))
	}
	return affected(res)
}

// List orders tickets by last update, newest first.
func (s *TicketStore) List(ctx context.Context, q models.Query) ([]models.Detail, int, error) {
	c := &conditions{}
	if q.Filter.Q != "" {
		p := c.arg(likePattern(q.Filter.Q))
		c.and("(t.title ILIKE " + p + " OR c.name ILIKE " + p + ")")
	}
	if len(q.Filter.Statuses) > 0 {
		c.and("t.status = ANY(" + c.arg(pq.Array(stringsOf(q.Filter.Statuses))) + ")")
	}
	if q.Filter.AssigneeID != nil {
		c.and("t.assignee_id = " + c.arg(*q.Filter.AssigneeID))
	}

	total, err := c.count(ctx, s.q(ctx), ticketFrom)
	if err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}
	query := ticketDetailSelect + c.where() + ` ORDER BY t.updated_at DESC, t.id DESC` + c.page(q.Page.Limit, q.Page.Offset())
	rows, err := s.q(ctx).QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []models.Detail
	for rows.Next() {
		d, err := scanTicketDetail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func scanTicket(row scanner) (*models.Ticket, error) {
	var (
		t        models.Ticket
		desc     sql.NullString
		status   string
		assignee uuid.NullUUID
	)
	if err := row.Scan(&t.ID, &t.CustomerID, &t.Title, &desc, &status, &assignee, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Description = stringPtr(desc)
	t.Status = models.Status(status)
	if assignee.Valid {
		t.AssigneeID = &assignee.UUID
	}
	return &t, nil
}

func scanTicketDetail(row scanner) (*models.Detail, error) {
	var (
		d                           models.Detail
		desc                        sql.NullString
		status                      string
		assignee                    uuid.NullUUID
		customerName, customerEmail string
		userName, userEmail         sql.NullString
	)
	if err := row.Scan(&d.ID, &d.CustomerID, &d.Title, &desc, &status, &assignee, &d.CreatedAt, &d.UpdatedAt,
		&customerName, &customerEmail, &userName, &userEmail); err != nil {
		return nil, err
	}
	d.Description = stringPtr(desc)
	d.Status = models.Status(status)
	d.Customer = &models.Party{ID: d.CustomerID, Name: customerName, Email: customerEmail}
	if assignee.Valid {
		d.AssigneeID = &assignee.UUID
		d.Assignee = &models.Party{ID: assignee.UUID, Name: userName.String, Email: userEmail.String}
	}
	return &d, nil
}
