// Package page normalises list pagination.
package page

import "math"

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps Offset within int for every allowed limit.
	MaxPage = math.MaxInt / MaxLimit
)

// Request is a normalised 1-based page request.
type Request struct {
	Page  int
	Limit int
}

// New clamps page to [1, MaxPage] and limit to [1, MaxLimit], defaulting a
// zero limit.
func New(page, limit int) Request {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Request{Page: page, Limit: limit}
}

// Offset is the number of rows skipped before this page.
func (r Request) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Result is the list response envelope.
type Result[T any] struct {
	Rows  []T `json:"rows"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// NewResult wraps rows for r. A nil slice is encoded as [] rather than null.
func NewResult[T any](r Request, rows []T, total int) Result[T] {
	if rows == nil {
		rows = []T{}
	}
	return Result[T]{Rows: rows, Total: total, Page: r.Page, Limit: r.Limit}
}

// Slice applies r to an in-memory slice already in final order.
func Slice[T any](r Request, all []T) []T {
	start := r.Offset()
	if start < 0 || start >= len(all) {
		return nil
	}
	end := start + r.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
