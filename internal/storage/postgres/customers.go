package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gestionale/internal/customer/models"
)

const customerColumns = `id, name, email, phone, status, joined_at, created_at, updated_at`

type CustomerStore struct {
	base
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{base{db: db}}
}

func (s *CustomerStore) Create(ctx context.Context, c *models.Customer) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Email, nullString(c.Phone), string(c.Status), c.JoinedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", mapError(err))
	}
	return nil
}

func (s *CustomerStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", notFound(err))
	}
	return c, nil
}

func (s *CustomerStore) Update(ctx context.Context, c *models.Customer) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, status = $5, joined_at = $6, updated_at = $7
		WHERE id = $1`,
		c.ID, c.Name, c.Email, nullString(c.Phone), string(c.Status), c.JoinedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", mapError(err))
	}
	return affected(res)
}

// Delete fails with sentinel.ErrConflict while sales or tickets reference the customer.
func (s *CustomerStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", mapError(err))
	}
	return affected(res)
}

func (s *CustomerStore) List(ctx context.Context, q models.Query) ([]models.Customer, int, error) {
	c := customerConditions(q.Filter)
	total, err := c.count(ctx, s.q(ctx), "customers")
	if err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}
	query := `SELECT ` + customerColumns + ` FROM customers` + c.where() +
		` ORDER BY created_at DESC, id DESC` + c.page(q.Page.Limit, q.Page.Offset())
	out, err := selectCustomers(ctx, s.q(ctx), query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func customerConditions(f models.Filter) *conditions {
	c := &conditions{}
	if f.Q != "" {
		p := c.arg(likePattern(f.Q))
		c.and("(name ILIKE " + p + " OR email ILIKE " + p + " OR phone ILIKE " + p + ")")
	}
	if len(f.Statuses) > 0 {
		c.and("status = ANY(" + c.arg(pq.Array(stringsOf(f.Statuses))) + ")")
	}
	return c
}

func selectCustomers(ctx context.Context, q querier, query string, args ...any) ([]models.Customer, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCustomer(row scanner) (*models.Customer, error) {
	var (
		c      models.Customer
		phone  sql.NullString
		status string
		joined sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &phone, &status, &joined, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Phone = stringPtr(phone)
	c.Status = models.Status(status)
	if joined.Valid {
		t := joined.Time
		c.JoinedAt = &t
	}
	return &c, nil
}
