package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"gestionale/pkg/money"
	"gestionale/pkg/platform/page"
)

// Kind classifies a product line.
type Kind string

const (
	KindSaaS     Kind = "SaaS"
	KindPlatform Kind = "Platform"
)

var Kinds = []Kind{KindSaaS, KindPlatform}

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case KindSaaS, KindPlatform:
		return k, true
	}
	return "", false
}

// Product is a subscription offering priced per month.
type Product struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description"`
	Monthly     money.Cents `json:"monthly"`
	Kind        Kind        `json:"kind"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Filter narrows product lists. Min and Max bound Monthly inclusively.
type Filter struct {
	Q      string
	Kinds  []Kind
	Active *bool
	Min    *money.Cents
	Max    *money.Cents
}

type Query struct {
	Filter Filter
	Page   page.Request
}
