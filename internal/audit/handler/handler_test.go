package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gestionale/internal/audit/handler/mocks"
	"gestionale/internal/audit/models"
	"gestionale/internal/export"
	"gestionale/internal/platform/logger"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/page"
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

func allowed(svc *mocks.MockService) {
	svc.EXPECT().AuthorizeRead(gomock.Any()).Return(nil).AnyTimes()
}

func denied(svc *mocks.MockService) {
	svc.EXPECT().AuthorizeRead(gomock.Any()).Return(dErrors.New(dErrors.CodeForbidden, "forbidden")).AnyTimes()
}

func TestListParsesFilter(t *testing.T) {
	r, svc := newRouter(t)
	allowed(svc)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC)
	svc.EXPECT().List(gomock.Any(), models.Filter{
		Q: "acme", Entity: "Sale", Action: models.ActionPay, UserID: "u-1", From: &from, To: &to,
	}, page.New(3, 50)).Return(page.Result[models.Record]{Rows: []models.Record{}, Page: 3, Limit: 50}, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet,
		"/audit?q=acme&entity=Sale&action=pay&userId=u-1&from=2026-03-01&to=2026-03-31&page=3&limit=50"))
	testutil.AssertStatusOK(t, rr)
}

func TestListRejectsBadParameters(t *testing.T) {
	r, svc := newRouter(t)
	allowed(svc)
	for _, query := range []string{"action=ARCHIVE", "from=yesterday", "to=2026-13-01"} {
		t.Run(query, func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/audit?"+query))
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
		})
	}
}

func TestListForbidden(t *testing.T) {
	r, svc := newRouter(t)
	denied(svc)

	for _, query := range []string{"", "?action=ARCHIVE", "?from=yesterday"} {
		t.Run(query, func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/audit"+query))
			testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
		})
	}
}

func TestExportCSV(t *testing.T) {
	r, svc := newRouter(t)
	allowed(svc)
	svc.EXPECT().Export(gomock.Any(), models.Filter{}).Return(export.Table{
		Columns: []string{"id", "action"},
		Rows:    []map[string]any{{"id": "01J", "action": "CREATE"}},
	}, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/audit/export"))
	testutil.AssertStatusOK(t, rr)
	assert.Equal(t, `attachment; filename="audit.csv"`, rr.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,action", strings.TrimSpace(lines[0]))
}

func TestExportUnknownFormat(t *testing.T) {
	r, svc := newRouter(t)
	allowed(svc)
	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/audit/export?format=docx"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestExportForbiddenBeforeParsing(t *testing.T) {
	r, svc := newRouter(t)
	denied(svc)

	for _, query := range []string{"format=bogus", "action=ARCHIVE", "format=csv"} {
		t.Run(query, func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/audit/export?"+query))
			testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
		})
	}
}
