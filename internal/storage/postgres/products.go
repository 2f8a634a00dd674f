package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gestionale/internal/product/models"
	"gestionale/pkg/money"
)

const productColumns = `id, name, description, monthly_cents, kind, is_active, created_at, updated_at`

type ProductStore struct {
	base
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{base{db: db}}
}

func (s *ProductStore) Create(ctx context.Context, p *models.Product) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, nullString(p.Description), int64(p.Monthly), string(p.Kind), p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", mapError(err))
	}
	return nil
}

func (s *ProductStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("find product: %w", notFound(err))
	}
	return p, nil
}

func (s *ProductStore) Update(ctx context.Context, p *models.Product) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, monthly_cents = $4, kind = $5, is_active = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Name, nullString(p.Description), int64(p.Monthly), string(p.Kind), p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", mapError(err))
	}
	return affected(res)
}

// Delete fails with sentinel.ErrConflict while a sale references the product.
func (s *ProductStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", mapError(err))
	}
	return affected(res)
}

func (s *ProductStore) List(ctx context.Context, q models.Query) ([]models.Product, int, error) {
	c := productConditions(q.Filter)
	total, err := c.count(ctx, s.q(ctx), "products")
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	query := `SELECT ` + productColumns + ` FROM products` + c.where() +
		` ORDER BY created_at DESC, id DESC` + c.page(q.Page.Limit, q.Page.Offset())
	out, err := selectProducts(ctx, s.q(ctx), query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func productConditions(f models.Filter) *conditions {
	c := &conditions{}
	if f.Q != "" {
		p := c.arg(likePattern(f.Q))
		c.and("(name ILIKE " + p + " OR description ILIKE " + p + ")")
	}
	if len(f.Kinds) > 0 {
		c.and("kind = ANY(" + c.arg(pq.Array(stringsOf(f.Kinds))) + ")")
	}
	if f.Active != nil {
		c.and("is_active = " + c.arg(*f.Active))
	}
	if f.Min != nil {
		c.and("monthly_cents >= " + c.arg(int64(*f.Min)))
	}
	if f.Max != nil {
		c.and("monthly_cents <= " + c.arg(int64(*f.Max)))
	}
	return c
}

func selectProducts(ctx context.Context, q querier, query string, args ...any) ([]models.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProduct(row scanner) (*models.Product, error) {
	var (
		p           models.Product
		description sql.NullString
		monthly     int64
		kind        string
	)
	if err := row.Scan(&p.ID, &p.Name, &description, &monthly, &kind, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	p.Monthly = money.Cents(monthly)
	p.Kind = models.Kind(kind)
	return &p, nil
}
