package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	customermodels "gestionale/internal/customer/models"
	productmodels "gestionale/internal/product/models"
	"gestionale/internal/sale/models"
	"gestionale/pkg/money"
	"gestionale/pkg/platform/tx"
)

const saleColumns = `id, customer_id, product_id, seller_id, months, amount_cents, status, sold_at, created_at, updated_at`

// saleDetailSelect joins a sale with its customer and product; the
// subscription columns are NULL when none exists.
const saleDetailSelect = `
	SELECT s.id, s.customer_id, s.product_id, s.seller_id, s.months, s.amount_cents, s.status, s.sold_at, s.created_at, s.updated_at,
	       c.id, c.name, c.email, c.phone, c.status, c.joined_at, c.created_at, c.updated_at,
	       p.id, p.name, p.description, p.monthly_cents, p.kind, p.is_active, p.created_at, p.updated_at,
	       sub.id, sub.status, sub.external_id, sub.current_period_end, sub.created_at, sub.updated_at
	FROM sales s
	JOIN customers c ON c.id = s.customer_id
	JOIN products p ON p.id = s.product_id
	LEFT JOIN subscriptions sub ON sub.sale_id = s.id`

const saleFrom = `sales s JOIN customers c ON c.id = s.customer_id JOIN products p ON p.id = s.product_id`

type SaleStore struct {
	base
	runner *tx.Runner
}

func NewSaleStore(db *sql.DB) *SaleStore {
	return &SaleStore{base: base{db: db}, runner: tx.NewRunner(db)}
}

func (s *SaleStore) CreateWithSubscription(ctx context.Context, sale *models.Sale, sub *models.Subscription) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		if _, err := q.ExecContext(ctx,
			`INSERT INTO sales (`+saleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			sale.ID, sale.CustomerID, sale.ProductID, nullUUID(sale.SellerID), sale.Months, int64(sale.Amount),
			string(sale.Status), sale.SoldAt, sale.CreatedAt, sale.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert sale: %w", mapError(err))
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO subscriptions (id, sale_id, status, external_id, current_period_end, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sub.ID, sub.SaleID, string(sub.Status), nullString(sub.ExternalID), sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert subscription: %w", mapError(err))
		}
		return nil
	})
}

func (s *SaleStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		return nil, fmt.Errorf("find sale: %w", notFound(err))
	}
	return sale, nil
}

func (s *SaleStore) Detail(ctx context.Context, id uuid.UUID) (*models.Detail, error) {
	row := s.q(ctx).QueryRowContext(ctx, saleDetailSelect+` WHERE s.id = $1`, id)
	d, err := scanSaleDetail(row)
	if err != nil {
		return nil, fmt.Errorf("find sale detail: %w", notFound(err))
	}
	return d, nil
}

func (s *SaleStore) Update(ctx context.Context, sale *models.Sale) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE sales SET months = $2, amount_cents = $3, status = $4, updated_at = $5
		WHERE id = $1`,
		sale.ID, sale.Months, int64(sale.Amount), string(sale.Status), sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", mapError(err))
	}
	return affected(res)
}

func (s *SaleStore) MarkPaid(ctx context.Context, id uuid.UUID, externalID *string, now time.Time) (*models.Sale, error) {
	var sale *models.Sale
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		row := q.QueryRowContext(ctx,
			`UPDATE sales SET status = $2, updated_at = $3 WHERE id = $1 RETURNING `+saleColumns,
			id, string(models.StatusPaid), now,
		)
		var err error
		if sale, err = scanSale(row); err != nil {
			return fmt.Errorf("mark sale paid: %w", notFound(err))
		}
		opened := models.NewSubscription(sale.ID, sale.Months, now)
		if _, err := q.ExecContext(ctx, `
			INSERT INTO subscriptions (id, sale_id, status, external_id, current_period_end, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (sale_id) DO UPDATE
			SET status = EXCLUDED.status,
			    external_id = COALESCE(EXCLUDED.external_id, subscriptions.external_id),
			    updated_at = EXCLUDED.updated_at`,
			opened.ID, sale.ID, string(models.SubscriptionActive), nullString(externalID), opened.CurrentPeriodEnd, now,
		); err != nil {
			return fmt.Errorf("activate subscription: %w", mapError(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// Delete removes the sale; the subscription goes with it by cascade.
func (s *SaleStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sale: %w", mapError(err))
	}
	return affected(res)
}

// List returns sales with customer and product, without subscriptions.
func (s *SaleStore) List(ctx context.Context, q models.Query) ([]models.Detail, int, error) {
	c := saleConditions(q.Filter)
	total, err := c.count(ctx, s.q(ctx), saleFrom)
	if err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}
	query := saleDetailSelect + c.where() + ` ORDER BY s.created_at DESC, s.id DESC` + c.page(q.Page.Limit, q.Page.Offset())
	out, err := selectSaleDetails(ctx, s.q(ctx), query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Subscription = nil
	}
	return out, total, nil
}

func saleConditions(f models.Filter) *conditions {
	c := &conditions{}
	if f.Q != "" {
		p := c.arg(likePattern(f.Q))
		c.and("(c.name ILIKE " + p + " OR p.name ILIKE " + p + ")")
	}
	if len(f.Statuses) > 0 {
		c.and("s.status = ANY(" + c.arg(pq.Array(stringsOf(f.Statuses))) + ")")
	}
	return c
}

func selectSaleDetails(ctx context.Context, q querier, query string, args ...any) ([]models.Detail, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var out []models.Detail
	for rows.Next() {
		d, err := scanSaleDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanSale(row scanner) (*models.Sale, error) {
	var (
		sale   models.Sale
		seller uuid.NullUUID
		amount int64
		status string
	)
	if err := row.Scan(&sale.ID, &sale.CustomerID, &sale.ProductID, &seller, &sale.Months, &amount,
		&status, &sale.SoldAt, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		return nil, err
	}
	if seller.Valid {
		sale.SellerID = &seller.UUID
	}
	sale.Amount = money.Cents(amount)
	sale.Status = models.Status(status)
	return &sale, nil
}

func scanSaleDetail(row scanner) (*models.Detail, error) {
	var (
		d      models.Detail
		seller uuid.NullUUID
		amount int64
		status string

		c       customermodels.Customer
		phone   sql.NullString
		cStatus string
		joined  sql.NullTime

		p       productmodels.Product
		desc    sql.NullString
		monthly int64
		kind    string

		subID       uuid.NullUUID
		subStatus   sql.NullString
		subExternal sql.NullString
		subEnd      sql.NullTime
		subCreated  sql.NullTime
		subUpdated  sql.NullTime
	)
	if err := row.Scan(
		&d.ID, &d.CustomerID, &d.ProductID, &seller, &d.Months, &amount, &status, &d.SoldAt, &d.CreatedAt, &d.UpdatedAt,
		&c.ID, &c.Name, &c.Email, &phone, &cStatus, &joined, &c.CreatedAt, &c.UpdatedAt,
		&p.ID, &p.Name, &desc, &monthly, &kind, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		&subID, &subStatus, &subExternal, &subEnd, &subCreated, &subUpdated,
	); err != nil {
		return nil, err
	}
	if seller.Valid {
		d.SellerID = &seller.UUID
	}
	d.Amount = money.Cents(amount)
	d.Status = models.Status(status)

	c.Phone = stringPtr(phone)
	c.Status = customermodels.Status(cStatus)
	if joined.Valid {
		t := joined.Time
		c.JoinedAt = &t
	}
	d.Customer = &c

	p.Description = stringPtr(desc)
	p.Monthly = money.Cents(monthly)
	p.Kind = productmodels.Kind(kind)
	d.Product = &p

	if subID.Valid {
		d.Subscription = &models.Subscription{
			ID:               subID.UUID,
			SaleID:           d.ID,
			Status:           models.SubscriptionStatus(subStatus.String),
			ExternalID:       stringPtr(subExternal),
			CurrentPeriodEnd: subEnd.Time,
			CreatedAt:        subCreated.Time,
			UpdatedAt:        subUpdated.Time,
		}
	}
	return &d, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
