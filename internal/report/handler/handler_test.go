package handler

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"gestionale/internal/export"
	"gestionale/internal/platform/logger"
	"gestionale/internal/report/handler/mocks"
	"gestionale/internal/report/models"
	"gestionale/pkg/money"
	"gestionale/pkg/testutil"
)

func newRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, logger.Discard()).Register(r)
	return r, svc
}

func TestSummary(t *testing.T) {
	r, svc := newRouter(t)
	svc.EXPECT().Summary(gomock.Any()).Return(&models.Summary{MRR: money.Cents(12345), Goal: 5000}, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reports/summary"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "mrr", 123.45)
}

func TestChurnNeverReturnsNull(t *testing.T) {
	r, svc := newRouter(t)
	svc.EXPECT().Churn(gomock.Any()).Return(nil, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reports/churn"))
	testutil.AssertStatusOK(t, rr)
	assert.JSONEq(t, `{"rows":[]}`, rr.Body.String())
}

func TestExportFormats(t *testing.T) {
	table := export.Table{Columns: []string{"id", "name"}, Rows: []map[string]any{{"id": "1", "name": "Acme"}}}
	tests := []struct {
		query    string
		scope    models.Scope
		filename string
		magic    []byte
	}{
		{"", models.ScopeSales, "sales_report.csv", []byte("id,name")},
		{"?scope=customers&format=xlsx", models.ScopeCustomers, "customers_report.xlsx", []byte("PK")},
		{"?scope=products&format=pdf", models.ScopeProducts, "products_report.pdf", []byte("%PDF")},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			r, svc := newRouter(t)
			svc.EXPECT().Export(gomock.Any(), tt.scope).Return(table, nil)

			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reports/export"+tt.query))
			testutil.AssertStatusOK(t, rr)
			assert.Equal(t, `attachment; filename="`+tt.filename+`"`, rr.Header().Get("Content-Disposition"))
			assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), tt.magic))
		})
	}
}

func TestExportRejectsUnknownScope(t *testing.T) {
	r, _ := newRouter(t)
	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reports/export?scope=tickets"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}
