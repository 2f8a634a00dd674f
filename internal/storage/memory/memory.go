// Package memory implements every service store interface in process memory.
// All record kinds share one lock so multi-record writes and reference checks
// are atomic. It backs local runs and tests.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	auditmodels "gestionale/internal/audit/models"
	customermodels "gestionale/internal/customer/models"
	identitymodels "gestionale/internal/identity/models"
	productmodels "gestionale/internal/product/models"
	salemodels "gestionale/internal/sale/models"
	ticketmodels "gestionale/internal/ticket/models"
	"gestionale/pkg/platform/page"
)

// DB holds every record kind.
type DB struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]identitymodels.User
	customers     map[uuid.UUID]customermodels.Customer
	products      map[uuid.UUID]productmodels.Product
	sales         map[uuid.UUID]salemodels.Sale
	subscriptions map[uuid.UUID]salemodels.Subscription // by sale id
	tickets       map[uuid.UUID]ticketmodels.Ticket
	audit         []auditmodels.Record
}

func New() *DB {
	return &DB{
		users:         make(map[uuid.UUID]identitymodels.User),
		customers:     make(map[uuid.UUID]customermodels.Customer),
		products:      make(map[uuid.UUID]productmodels.Product),
		sales:         make(map[uuid.UUID]salemodels.Sale),
		subscriptions: make(map[uuid.UUID]salemodels.Subscription),
		tickets:       make(map[uuid.UUID]ticketmodels.Ticket),
	}
}

func (db *DB) Users() *UserStore         { return &UserStore{db: db} }
func (db *DB) Customers() *CustomerStore { return &CustomerStore{db: db} }
func (db *DB) Products() *ProductStore   { return &ProductStore{db: db} }
func (db *DB) Sales() *SaleStore         { return &SaleStore{db: db} }
func (db *DB) Tickets() *TicketStore     { return &TicketStore{db: db} }
func (db *DB) Audit() *AuditStore        { return &AuditStore{db: db} }
func (db *DB) Reports() *ReportStore     { return &ReportStore{db: db} }

// newestFirst orders by (created DESC, id DESC), the order every list uses.
func newestFirst[T any](rows []T, key func(T) (time.Time, string)) {
	sort.SliceStable(rows, func(i, j int) bool {
		ti, idi := key(rows[i])
		tj, idj := key(rows[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
}

func paginate[T any](rows []T, req page.Request) ([]T, int) {
	return page.Slice(req, rows), len(rows)
}

// contains is a case-insensitive substring test over any of fields.
func contains(q string, fields ...string) bool {
	q = strings.ToLower(q)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func in[T comparable](v T, set []T) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
