package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodels "gestionale/internal/audit/models"
	customermodels "gestionale/internal/customer/models"
	identitymodels "gestionale/internal/identity/models"
	"gestionale/internal/policy"
	productmodels "gestionale/internal/product/models"
	salemodels "gestionale/internal/sale/models"
	"gestionale/pkg/money"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/platform/sentinel"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedSale(t *testing.T, db *DB) (*customermodels.Customer, *productmodels.Product, *salemodels.Sale) {
	t.Helper()
	ctx := context.Background()
	c := &customermodels.Customer{ID: uuid.New(), Name: "Acme", Email: "ops@acme.io", Status: customermodels.StatusActive, CreatedAt: t0}
	require.NoError(t, db.Customers().Create(ctx, c))
	p := &productmodels.Product{ID: uuid.New(), Name: "CRM Pro", Monthly: 2999, Kind: productmodels.KindSaaS, IsActive: true, CreatedAt: t0}
	require.NoError(t, db.Products().Create(ctx, p))
	s := &salemodels.Sale{ID: uuid.New(), CustomerID: c.ID, ProductID: p.ID, Months: 2, Amount: money.Cents(5998),
		Status: salemodels.StatusPending, SoldAt: t0, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, db.Sales().CreateWithSubscription(ctx, s, salemodels.NewSubscription(s.ID, 2, t0)))
	return c, p, s
}

func TestCustomerEmailIsUniqueIgnoringCase(t *testing.T) {
	db := New()
	ctx := context.Background()
	require.NoError(t, db.Customers().Create(ctx, &customermodels.Customer{ID: uuid.New(), Email: "ops@acme.io"}))

	err := db.Customers().Create(ctx, &customermodels.Customer{ID: uuid.New(), Email: "OPS@acme.io"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestReferencedRecordsCannotBeDeleted(t *testing.T) {
	db := New()
	ctx := context.Background()
	c, p, s := seedSale(t, db)

	assert.ErrorIs(t, db.Customers().Delete(ctx, c.ID), sentinel.ErrConflict)
	assert.ErrorIs(t, db.Products().Delete(ctx, p.ID), sentinel.ErrConflict)

	require.NoError(t, db.Sales().Delete(ctx, s.ID))
	assert.NoError(t, db.Products().Delete(ctx, p.ID))
	assert.NoError(t, db.Customers().Delete(ctx, c.ID))
	assert.ErrorIs(t, db.Customers().Delete(ctx, c.ID), sentinel.ErrNotFound)
}

func TestMarkPaidActivatesSubscription(t *testing.T) {
	db := New()
	ctx := context.Background()
	_, _, s := seedSale(t, db)
	external := "sub_42"

	paid, err := db.Sales().MarkPaid(ctx, s.ID, &external, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, salemodels.StatusPaid, paid.Status)

	d, err := db.Sales().Detail(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Subscription)
	assert.Equal(t, salemodels.SubscriptionActive, d.Subscription.Status)
	assert.Equal(t, external, *d.Subscription.ExternalID)
	assert.Equal(t, "Acme", d.Customer.Name)

	_, err = db.Sales().MarkPaid(ctx, uuid.New(), nil, t0)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSaleDeleteRemovesSubscription(t *testing.T) {
	db := New()
	ctx := context.Background()
	_, _, s := seedSale(t, db)
	_, err := db.Sales().MarkPaid(ctx, s.ID, nil, t0)
	require.NoError(t, err)
	subs, err := db.Reports().ActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, db.Sales().Delete(ctx, s.ID))
	subs, err = db.Reports().ActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
	_, err = db.Sales().Detail(ctx, s.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestAuditRecordsAreImmutableCopies(t *testing.T) {
	db := New()
	ctx := context.Background()
	user := &identitymodels.User{ID: uuid.New(), Email: "ana@example.com", Name: "Ana", Role: policy.RoleAdmin}
	require.NoError(t, db.Users().Create(ctx, user))

	uid := user.ID.String()
	meta := map[string]any{"name": "Acme"}
	for i := range 3 {
		require.NoError(t, db.Audit().Append(ctx, &auditmodels.Record{
			ID: uuid.NewString(), UserID: &uid, Action: auditmodels.ActionCreate, Entity: "Customer",
			EntityID: "c-1", Metadata: meta, CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	meta["name"] = "changed"

	rows, total, err := db.Audit().List(ctx, auditmodels.Filter{}, page.New(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))
	assert.Equal(t, "Acme", rows[0].Metadata["name"])
	require.NotNil(t, rows[0].User)
	assert.Equal(t, "Ana", rows[0].User.Name)

	rows[0].Metadata["name"] = "mutated"
	all, err := db.Audit().ListAll(ctx, auditmodels.Filter{}, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Acme", all[0].Metadata["name"])
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &identitymodels.Session{ID: "s-1", ExpiresAt: t0}))

	got, err := store.Find(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, t0, got.ExpiresAt)

	require.NoError(t, store.Delete(ctx, "s-1"))
	_, err = store.Find(ctx, "s-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
