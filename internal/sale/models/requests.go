package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Months accepts a JSON integer or an integer string.
type Months int

func (m *Months) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("months must be an integer: %w", err)
	}
	*m = Months(n)
	return nil
}

// CreateRequest is the payload for creating a sale.
type CreateRequest struct {
	CustomerID string  `json:"customerId"`
	ProductID  string  `json:"productId"`
	Months     Months  `json:"months"`
	SoldAt     *string `json:"soldAt"`
}

func (r *CreateRequest) Normalize() {
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.ProductID = strings.TrimSpace(r.ProductID)
	if r.SoldAt != nil {
		v := strings.TrimSpace(*r.SoldAt)
		if v == "" {
			r.SoldAt = nil
		} else {
			r.SoldAt = &v
		}
	}
}

func (r *CreateRequest) Validate() error {
	if r.CustomerID == "" {
		return errors.New("customerId is required")
	}
	if r.ProductID == "" {
		return errors.New("productId is required")
	}
	if err := validateMonths(int(r.Months)); err != nil {
		return err
	}
	if r.SoldAt != nil {
		if _, err := time.Parse(time.RFC3339, *r.SoldAt); err != nil {
			return errors.New("soldAt must be an RFC 3339 timestamp")
		}
	}
	return nil
}

// SoldAtOr returns the requested sale time, or now. Call after Validate.
func (r *CreateRequest) SoldAtOr(now time.Time) time.Time {
	if r.SoldAt == nil {
		return now
	}
	t, err := time.Parse(time.RFC3339, *r.SoldAt)
	if err != nil {
		return now
	}
	return t.UTC()
}

// UpdateRequest changes months, status or both.
type UpdateRequest struct {
	Months *Months `json:"months"`
	Status *string `json:"status"`
}

func (r *UpdateRequest) Normalize() {
	if r.Status != nil {
		v := strings.TrimSpace(*r.Status)
		r.Status = &v
	}
}

func (r *UpdateRequest) Validate() error {
	if r.Months != nil {
		if err := validateMonths(int(*r.Months)); err != nil {
			return err
		}
	}
	if r.Status != nil {
		if _, ok := ParseStatus(*r.Status); !ok {
			return errors.New("status must be one of pending, paid, failed")
		}
	}
	return nil
}

func validateMonths(m int) error {
	if m < MinMonths || m > MaxMonths {
		return fmt.Errorf("months must be between %d and %d", MinMonths, MaxMonths)
	}
	return nil
}

// WebhookEvent is a payment provider notification.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		SaleID         string `json:"saleId"`
		SubscriptionID string `json:"subscriptionId"`
	} `json:"data"`
}

// EventInvoicePaid is the only webhook event that changes state.
const EventInvoicePaid = "invoice.paid"
