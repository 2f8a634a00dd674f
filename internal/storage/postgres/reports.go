package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	customermodels "gestionale/internal/customer/models"
	productmodels "gestionale/internal/product/models"
	reportmodels "gestionale/internal/report/models"
	salemodels "gestionale/internal/sale/models"
	ticketmodels "gestionale/internal/ticket/models"
	"gestionale/pkg/money"
)

// ReportStore runs the aggregate queries behind the dashboard and exports.
type ReportStore struct {
	base
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{base{db: db}}
}

func (s *ReportStore) PaidRevenue(ctx context.Context) (money.Cents, error) {
	return s.sum(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM sales WHERE status = $1`, string(salemodels.StatusPaid))
}

// MRR sums the monthly price of the product behind every active subscription.
func (s *ReportStore) MRR(ctx context.Context) (money.Cents, error) {
	return s.sum(ctx, `
		SELECT COALESCE(SUM(p.monthly_cents), 0)
		FROM subscriptions sub
		JOIN sales s ON s.id = sub.sale_id
		JOIN products p ON p.id = s.product_id
		WHERE sub.status = $1`, string(salemodels.SubscriptionActive))
}

func (s *ReportStore) sum(ctx context.Context, query string, args ...any) (money.Cents, error) {
	var total int64
	if err := s.q(ctx).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum: %w", err)
	}
	return money.Cents(total), nil
}

// CustomerCounts has an entry for every status, zero included.
func (s *ReportStore) CustomerCounts(ctx context.Context) (map[customermodels.Status]int, error) {
	counts := make(map[customermodels.Status]int, len(customermodels.Statuses))
	for _, st := range customermodels.Statuses {
		counts[st] = 0
	}
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT status, count(*) FROM customers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count customers by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan customer count: %w", err)
		}
		counts[customermodels.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *ReportStore) OpenTickets(ctx context.Context) (int, error) {
	var n int
	if err := s.q(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM tickets WHERE status = $1`, string(ticketmodels.StatusOpen),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open tickets: %w", err)
	}
	return n, nil
}

func (s *ReportStore) OpenTicketsByCustomer(ctx context.Context) (map[uuid.UUID]int, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT customer_id, count(*) FROM tickets WHERE status = $1 GROUP BY customer_id`,
		string(ticketmodels.StatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("count open tickets by customer: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan ticket count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *ReportStore) ActiveSubscriptions(ctx context.Context) ([]reportmodels.ActiveSubscription, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT s.customer_id, s.months, p.monthly_cents
		FROM subscriptions sub
		JOIN sales s ON s.id = sub.sale_id
		JOIN products p ON p.id = s.product_id
		WHERE sub.status = $1`, string(salemodels.SubscriptionActive))
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var out []reportmodels.ActiveSubscription
	for rows.Next() {
		var (
			sub     reportmodels.ActiveSubscription
			monthly int64
		)
		if err := rows.Scan(&sub.CustomerID, &sub.Months, &monthly); err != nil {
			return nil, fmt.Errorf("scan active subscription: %w", err)
		}
		sub.Monthly = money.Cents(monthly)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *ReportStore) RecentCustomers(ctx context.Context, limit int) ([]customermodels.Customer, error) {
	return selectCustomers(ctx, s.q(ctx),
		`SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (s *ReportStore) RecentProducts(ctx context.Context, limit int) ([]productmodels.Product, error) {
	return selectProducts(ctx, s.q(ctx),
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (s *ReportStore) RecentSales(ctx context.Context, limit int) ([]salemodels.Detail, error) {
	return selectSaleDetails(ctx, s.q(ctx),
		saleDetailSelect+` ORDER BY s.created_at DESC, s.id DESC LIMIT $1`, limit)
}
