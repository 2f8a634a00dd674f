package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodels "gestionale/internal/audit/models"
	auditservice "gestionale/internal/audit/service"
	customermodels "gestionale/internal/customer/models"
	"gestionale/internal/mutation"
	"gestionale/internal/policy"
	"gestionale/internal/product/models"
	salemodels "gestionale/internal/sale/models"
	"gestionale/internal/storage/memory"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/money"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/testutil"
)

func newService(t *testing.T) (*Service, *memory.DB) {
	t.Helper()
	db := memory.New()
	guard := policy.NewGuard(nil)
	pipeline := mutation.New(guard, auditservice.New(db.Audit(), guard))
	return New(db.Products(), guard, pipeline), db
}

func cents(v money.Cents) *money.Cents { return &v }

func TestProductLifecycle(t *testing.T) {
	svc, db := newService(t)
	admin := testutil.As(context.Background(), testutil.Caller(string(policy.RoleAdmin)))

	testutil.Given(t, "an admin creating a product", func(t *testing.T) {
		p, err := svc.Create(admin, models.CreateRequest{Name: "CRM Pro", Monthly: cents(2999), Kind: "SaaS"})
		require.NoError(t, err)
		assert.True(t, p.IsActive, "products are active unless told otherwise")

		testutil.When(t, "the product is deactivated", func(t *testing.T) {
			inactive := false
			updated, err := svc.Update(admin, p.ID.String(), models.UpdateRequest{IsActive: &inactive})
			require.NoError(t, err)
			assert.False(t, updated.IsActive)
		})

		testutil.Then(t, "every change is audited", func(t *testing.T) {
			rows, err := db.Audit().ListAll(context.Background(), auditmodels.Filter{Entity: "Product"}, 10)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, map[string]any{"kind": "SaaS", "isActive": false}, rows[0].Metadata)
			assert.Equal(t, map[string]any{"monthly": money.Cents(2999), "kind": "SaaS"}, rows[1].Metadata)
		})
	})
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	admin := testutil.As(context.Background(), testutil.Caller(string(policy.RoleAdmin)))

	tests := []struct {
		name string
		req  models.CreateRequest
	}{
		{"missing monthly", models.CreateRequest{Name: "CRM", Kind: "SaaS"}},
		{"negative monthly", models.CreateRequest{Name: "CRM", Kind: "SaaS", Monthly: cents(-1)}},
		{"monthly above cap", models.CreateRequest{Name: "CRM", Kind: "SaaS", Monthly: cents(models.MaxMonthly + 1)}},
		{"monthly overflowing a sixty month sale", models.CreateRequest{Name: "CRM", Kind: "SaaS", Monthly: cents(1_000_000_000_000_000_000)}},
		{"unknown kind", models.CreateRequest{Name: "CRM", Kind: "Hardware", Monthly: cents(100)}},
		{"short name", models.CreateRequest{Name: "C", Kind: "SaaS", Monthly: cents(100)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(admin, tt.req)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func TestSalesCanOnlyRead(t *testing.T) {
	svc, _ := newService(t)
	admin := testutil.As(context.Background(), testutil.Caller(string(policy.RoleAdmin)))
	sales := testutil.As(context.Background(), testutil.Caller(string(policy.RoleSales)))

	p, err := svc.Create(admin, models.CreateRequest{Name: "CRM Pro", Monthly: cents(1000), Kind: "Platform"})
	require.NoError(t, err)

	_, err = svc.Create(sales, models.CreateRequest{Name: "Other", Monthly: cents(1000), Kind: "SaaS"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	got, err := svc.Get(sales, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.Get(sales, "nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDeleteReferencedProduct(t *testing.T) {
	svc, db := newService(t)
	admin := testutil.As(context.Background(), testutil.Caller(string(policy.RoleAdmin)))
	ctx := context.Background()

	p, err := svc.Create(admin, models.CreateRequest{Name: "CRM Pro", Monthly: cents(1000), Kind: "SaaS"})
	require.NoError(t, err)

	now := time.Now().UTC()
	c := &customermodels.Customer{ID: uuid.New(), Name: "Acme", Email: "acme@example.com", Status: customermodels.StatusActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Customers().Create(ctx, c))
	sale := &salemodels.Sale{ID: uuid.New(), CustomerID: c.ID, ProductID: p.ID, Months: 1, Amount: 1000, Status: salemodels.StatusPending, SoldAt: now, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Sales().CreateWithSubscription(ctx, sale, salemodels.NewSubscription(sale.ID, 1, now)))

	_, err = svc.Delete(admin, p.ID.String())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Contains(t, err.Error(), "product is referenced by sales")
}

func TestListPriceRange(t *testing.T) {
	svc, _ := newService(t)
	admin := testutil.As(context.Background(), testutil.Caller(string(policy.RoleAdmin)))
	for _, m := range []money.Cents{500, 1500, 3000} {
		_, err := svc.Create(admin, models.CreateRequest{Name: "Plan " + m.String(), Monthly: cents(m), Kind: "SaaS"})
		require.NoError(t, err)
	}

	minPrice, maxPrice := money.Cents(1000), money.Cents(2000)
	res, err := svc.List(admin, models.Query{Filter: models.Filter{Min: &minPrice, Max: &maxPrice}, Page: page.New(1, 20)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, money.Cents(1500), res.Rows[0].Monthly)
}
