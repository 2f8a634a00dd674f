package models

import (
	"strings"

	"github.com/google/uuid"

	customermodels "gestionale/internal/customer/models"
	"gestionale/pkg/money"
)

// Summary is the KPI overview shown on the dashboard.
type Summary struct {
	PaidRevenue money.Cents `json:"paidRevenue"`
	MRR         money.Cents `json:"mrr"`
	ARPU        money.Cents `json:"arpu"`
	ChurnRate   float64     `json:"churnRate"`
	Goal        float64     `json:"goal"`
	Counts      Counts      `json:"counts"`
	Radar       []RadarKPI  `json:"radar"`
}

type Counts struct {
	Customers   map[customermodels.Status]int `json:"customers"`
	TicketsOpen int                           `json:"ticketsOpen"`
}

// RadarKPI is one normalised 0..100 axis of the dashboard radar chart.
type RadarKPI struct {
	KPI   string `json:"kpi"`
	Value int    `json:"value"`
}

// ActiveSubscription is the churn input contributed by one active subscription.
type ActiveSubscription struct {
	CustomerID uuid.UUID
	Months     int
	Monthly    money.Cents
}

// ChurnInput holds the features of the churn score.
type ChurnInput struct {
	DaysInactive int
	Months       int
	MRR          money.Cents
	TicketsOpen  int
}

// ChurnRow is one ranked customer in the churn report.
type ChurnRow struct {
	ID           uuid.UUID             `json:"id"`
	Name         string                `json:"name"`
	Email        string                `json:"email"`
	Status       customermodels.Status `json:"status"`
	Score        float64               `json:"score"`
	DaysInactive int                   `json:"daysInactive"`
	Months       int                   `json:"months"`
	MRR          money.Cents           `json:"mrr"`
	TicketsOpen  int                   `json:"ticketsOpen"`
}

// Scope selects the record kind of a report export.
type Scope string

const (
	ScopeCustomers Scope = "customers"
	ScopeProducts  Scope = "products"
	ScopeSales     Scope = "sales"
)

// ParseScope defaults an empty value to sales.
func ParseScope(s string) (Scope, bool) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeSales, true
	case ScopeCustomers, ScopeProducts, ScopeSales:
		return sc, true
	}
	return "", false
}
