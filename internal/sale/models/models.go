package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	customermodels "gestionale/internal/customer/models"
	productmodels "gestionale/internal/product/models"
	"gestionale/pkg/money"
	"gestionale/pkg/platform/page"
)

// Status is the payment state of a sale. Any status may follow any other.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

var Statuses = []Status{StatusPending, StatusPaid, StatusFailed}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusPending, StatusPaid, StatusFailed:
		return st, true
	}
	return "", false
}

// SubscriptionStatus is the billing state of the subscription opened by a sale.
type SubscriptionStatus string

const (
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// PeriodDays is the length of one billed month.
const PeriodDays = 30

const (
	MinMonths = 1
	MaxMonths = 60
)

// Sale is the sale of a product to a customer for a number of months.
// Amount is always the product's monthly price times Months.
type Sale struct {
	ID         uuid.UUID   `json:"id"`
	CustomerID uuid.UUID   `json:"customerId"`
	ProductID  uuid.UUID   `json:"productId"`
	SellerID   *uuid.UUID  `json:"userId"`
	Months     int         `json:"months"`
	Amount     money.Cents `json:"amount"`
	Status     Status      `json:"status"`
	SoldAt     time.Time   `json:"soldAt"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Subscription is created with its sale and deleted with it.
type Subscription struct {
	ID               uuid.UUID          `json:"id"`
	SaleID           uuid.UUID          `json:"saleId"`
	Status           SubscriptionStatus `json:"status"`
	ExternalID       *string            `json:"externalId"`
	CurrentPeriodEnd time.Time          `json:"currentPeriodEnd"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// NewSubscription opens a past-due subscription covering months billing periods from now.
func NewSubscription(saleID uuid.UUID, months int, now time.Time) *Subscription {
	return &Subscription{
		ID:               uuid.New(),
		SaleID:           saleID,
		Status:           SubscriptionPastDue,
		CurrentPeriodEnd: now.Add(time.Duration(months) * PeriodDays * 24 * time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Detail is a sale with its customer, product and, on single reads, subscription.
type Detail struct {
	Sale
	Customer     *customermodels.Customer `json:"customer"`
	Product      *productmodels.Product   `json:"product"`
	Subscription *Subscription            `json:"subscription,omitempty"`
}

// Filter narrows sale lists. Q matches customer or product name.
type Filter struct {
	Q        string
	Statuses []Status
}

type Query struct {
	Filter Filter
	Page   page.Request
}

// ExternalSubscriptionID is the provider id recorded when a webhook omits one.
func ExternalSubscriptionID(saleID uuid.UUID, provided string) string {
	if provided = strings.TrimSpace(provided); provided != "" {
		return provided
	}
	return "sub_mock_" + saleID.String()
}
