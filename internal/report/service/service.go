// Package service computes the read-side reports: KPI summary, churn ranking
// and flat exports.
package service

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	customermodels "gestionale/internal/customer/models"
	"gestionale/internal/export"
	"gestionale/internal/policy"
	productmodels "gestionale/internal/product/models"
	"gestionale/internal/report/models"
	salemodels "gestionale/internal/sale/models"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/money"
	"gestionale/pkg/requestcontext"
)

const (
	churnSampleSize = 200
	churnTopN       = 10
	arpuReference   = 200
	npsPlaceholder  = 70
)

// Store runs the aggregate queries behind the reports.
type Store interface {
	PaidRevenue(ctx context.Context) (money.Cents, error)
	MRR(ctx context.Context) (money.Cents, error)
	CustomerCounts(ctx context.Context) (map[customermodels.Status]int, error)
	OpenTickets(ctx context.Context) (int, error)
	OpenTicketsByCustomer(ctx context.Context) (map[uuid.UUID]int, error)
	ActiveSubscriptions(ctx context.Context) ([]models.ActiveSubscription, error)
	RecentCustomers(ctx context.Context, limit int) ([]customermodels.Customer, error)
	RecentProducts(ctx context.Context, limit int) ([]productmodels.Product, error)
	RecentSales(ctx context.Context, limit int) ([]salemodels.Detail, error)
}

// Authorizer is satisfied by *policy.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, resource policy.Resource, ability policy.Ability) (requestcontext.Principal, error)
}

type Service struct {
	store   Store
	guard   Authorizer
	mrrGoal float64
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a Service measuring MRR against mrrGoal.
func New(store Store, guard Authorizer, mrrGoal float64, opts ...Option) *Service {
	s := &Service{store: store, guard: guard, mrrGoal: mrrGoal, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary computes the KPI overview. Independent aggregates run in parallel.
func (s *Service) Summary(ctx context.Context) (*models.Summary, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceReports, policy.Read); err != nil {
		return nil, err
	}

	var (
		paid        money.Cents
		mrr         money.Cents
		counts      map[customermodels.Status]int
		ticketsOpen int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		paid, err = s.store.PaidRevenue(gctx)
		return err
	})
	g.Go(func() (err error) {
		mrr, err = s.store.MRR(gctx)
		return err
	})
	g.Go(func() (err error) {
		counts, err = s.store.CustomerCounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		ticketsOpen, err = s.store.OpenTickets(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute summary")
	}

	full := make(map[customermodels.Status]int, len(customermodels.Statuses))
	for _, st := range customermodels.Statuses {
		full[st] = counts[st]
	}
	return buildSummary(paid, mrr, full, ticketsOpen, s.mrrGoal), nil
}

func buildSummary(paid, mrr money.Cents, counts map[customermodels.Status]int, ticketsOpen int, goal float64) *models.Summary {
	active := counts[customermodels.StatusActive]
	churned := counts[customermodels.StatusChurn]

	var arpu money.Cents
	if active > 0 {
		arpu = money.Cents(math.Round(float64(paid) / float64(active)))
	}
	churnRate := float64(churned) / float64(max(active+churned, 1)) * 100

	mrrPct := math.Min(100, mrr.Float()/nonZero(goal)*100)
	return &models.Summary{
		PaidRevenue: paid,
		MRR:         mrr,
		ARPU:        arpu,
		ChurnRate:   churnRate,
		Goal:        goal,
		Counts:      models.Counts{Customers: counts, TicketsOpen: ticketsOpen},
		Radar: []models.RadarKPI{
			{KPI: "MRR", Value: int(math.Round(mrrPct))},
			{KPI: "Churn", Value: int(math.Round(math.Min(100, churnRate)))},
			{KPI: "ARPU", Value: int(math.Round(math.Min(100, arpu.Float()/arpuReference*100)))},
			{KPI: "NPS", Value: npsPlaceholder},
		},
	}
}

// Churn ranks the most recent customers by churn risk.
func (s *Service) Churn(ctx context.Context) ([]models.ChurnRow, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceReports, policy.Read); err != nil {
		return nil, err
	}

	var (
		customers []customermodels.Customer
		subs      []models.ActiveSubscription
		tickets   map[uuid.UUID]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		customers, err = s.store.RecentCustomers(gctx, churnSampleSize)
		return err
	})
	g.Go(func() (err error) {
		subs, err = s.store.ActiveSubscriptions(gctx)
		return err
	})
	g.Go(func() (err error) {
		tickets, err = s.store.OpenTicketsByCustomer(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute churn ranking")
	}

	return rankChurn(customers, subs, tickets, requestcontext.Now(ctx)), nil
}

func rankChurn(customers []customermodels.Customer, subs []models.ActiveSubscription, tickets map[uuid.UUID]int, now time.Time) []models.ChurnRow {
	byCustomer := make(map[uuid.UUID][]models.ActiveSubscription)
	for _, sub := range subs {
		byCustomer[sub.CustomerID] = append(byCustomer[sub.CustomerID], sub)
	}

	rows := make([]models.ChurnRow, 0, len(customers))
	for _, c := range customers {
		in := churnInput(c, byCustomer[c.ID], tickets[c.ID], now)
		rows = append(rows, models.ChurnRow{
			ID:           c.ID,
			Name:         c.Name,
			Email:        c.Email,
			Status:       c.Status,
			Score:        ChurnScore(in),
			DaysInactive: in.DaysInactive,
			Months:       in.Months,
			MRR:          in.MRR,
			TicketsOpen:  in.TicketsOpen,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	if len(rows) > churnTopN {
		rows = rows[:churnTopN]
	}
	return rows
}

// Export projects the records of scope into a table, newest first.
func (s *Service) Export(ctx context.Context, scope models.Scope) (export.Table, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceReports, policy.Read); err != nil {
		return export.Table{}, err
	}
	table, err := s.exportTable(ctx, scope)
	if err != nil {
		return export.Table{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to export "+string(scope))
	}
	s.logger.InfoContext(ctx, "report exported",
		"scope", string(scope),
		"rows", len(table.Rows),
		"request_id", requestcontext.RequestID(ctx),
	)
	return table, nil
}

func (s *Service) exportTable(ctx context.Context, scope models.Scope) (export.Table, error) {
	switch scope {
	case models.ScopeCustomers:
		rows, err := s.store.RecentCustomers(ctx, export.MaxRows)
		if err != nil {
			return export.Table{}, err
		}
		t := export.Table{Columns: []string{"id", "name", "email", "phone", "status", "joinedAt", "createdAt"}}
		for _, c := range rows {
			t.Rows = append(t.Rows, map[string]any{
				"id": c.ID.String(), "name": c.Name, "email": c.Email, "phone": c.Phone,
				"status": string(c.Status), "joinedAt": c.JoinedAt, "createdAt": c.CreatedAt,
			})
		}
		return t, nil
	case models.ScopeProducts:
		rows, err := s.store.RecentProducts(ctx, export.MaxRows)
		if err != nil {
			return export.Table{}, err
		}
		t := export.Table{Columns: []string{"id", "name", "kind", "monthly", "isActive", "createdAt"}}
		for _, p := range rows {
			t.Rows = append(t.Rows, map[string]any{
				"id": p.ID.String(), "name": p.Name, "kind": string(p.Kind), "monthly": p.Monthly,
				"isActive": p.IsActive, "createdAt": p.CreatedAt,
			})
		}
		return t, nil
	default:
		rows, err := s.store.RecentSales(ctx, export.MaxRows)
		if err != nil {
			return export.Table{}, err
		}
		t := export.Table{Columns: []string{"id", "customer", "product", "months", "amount", "status", "soldAt"}}
		for _, d := range rows {
			row := map[string]any{
				"id": d.ID.String(), "months": d.Months, "amount": d.Amount,
				"status": string(d.Status), "soldAt": d.SoldAt,
			}
			if d.Customer != nil {
				row["customer"] = d.Customer.Name
			}
			if d.Product != nil {
				row["product"] = d.Product.Name
			}
			t.Rows = append(t.Rows, row)
		}
		return t, nil
	}
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
