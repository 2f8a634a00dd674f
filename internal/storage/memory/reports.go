package memory

import (
	"context"

	"github.com/google/uuid"

	customermodels "gestionale/internal/customer/models"
	productmodels "gestionale/internal/product/models"
	reportmodels "gestionale/internal/report/models"
	salemodels "gestionale/internal/sale/models"
	ticketmodels "gestionale/internal/ticket/models"
	"gestionale/pkg/money"
)

type ReportStore struct {
	db *DB
}

func (s *ReportStore) PaidRevenue(_ context.Context) (money.Cents, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var total money.Cents
	for _, sale := range s.db.sales {
		if sale.Status == salemodels.StatusPaid {
			total += sale.Amount
		}
	}
	return total, nil
}

func (s *ReportStore) MRR(ctx context.Context) (money.Cents, error) {
	subs, err := s.ActiveSubscriptions(ctx)
	if err != nil {
		return 0, err
	}
	var total money.Cents
	for _, sub := range subs {
		total += sub.Monthly
	}
	return total, nil
}

func (s *ReportStore) CustomerCounts(_ context.Context) (map[customermodels.Status]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	counts := make(map[customermodels.Status]int, len(customermodels.Statuses))
	for _, st := range customermodels.Statuses {
		counts[st] = 0
	}
	for _, c := range s.db.customers {
		counts[c.Status]++
	}
	return counts, nil
}

func (s *ReportStore) OpenTickets(ctx context.Context) (int, error) {
	byCustomer, err := s.OpenTicketsByCustomer(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range byCustomer {
		total += n
	}
	return total, nil
}

func (s *ReportStore) OpenTicketsByCustomer(_ context.Context) (map[uuid.UUID]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make(map[uuid.UUID]int)
	for _, t := range s.db.tickets {
		if t.Status == ticketmodels.StatusOpen {
			out[t.CustomerID]++
		}
	}
	return out, nil
}

func (s *ReportStore) ActiveSubscriptions(_ context.Context) ([]reportmodels.ActiveSubscription, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []reportmodels.ActiveSubscription
	for saleID, sub := range s.db.subscriptions {
		if sub.Status != salemodels.SubscriptionActive {
			continue
		}
		sale, ok := s.db.sales[saleID]
		if !ok {
			continue
		}
		out = append(out, reportmodels.ActiveSubscription{
			CustomerID: sale.CustomerID,
			Months:     sale.Months,
			Monthly:    s.db.products[sale.ProductID].Monthly,
		})
	}
	return out, nil
}

func (s *ReportStore) RecentCustomers(_ context.Context, limit int) ([]customermodels.Customer, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	rows := make([]customermodels.Customer, 0, len(s.db.customers))
	for _, c := range s.db.customers {
		rows = append(rows, c)
	}
	return head(s.db.sortedCustomers(rows), limit), nil
}

func (s *ReportStore) RecentProducts(_ context.Context, limit int) ([]productmodels.Product, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	rows := make([]productmodels.Product, 0, len(s.db.products))
	for _, p := range s.db.products {
		rows = append(rows, p)
	}
	return head(s.db.sortedProducts(rows), limit), nil
}

func (s *ReportStore) RecentSales(_ context.Context, limit int) ([]salemodels.Detail, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	rows := make([]salemodels.Detail, 0, len(s.db.sales))
	for _, sale := range s.db.sales {
		rows = append(rows, s.db.saleDetail(sale))
	}
	return head(sortedSales(rows), limit), nil
}

func head[T any](rows []T, n int) []T {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}
