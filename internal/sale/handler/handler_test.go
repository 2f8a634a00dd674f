package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gestionale/internal/platform/logger"
	"gestionale/internal/sale/handler/mocks"
	"gestionale/internal/sale/models"
	"gestionale/internal/sale/service"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/middleware/signature"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/testutil"
)

const webhookSecret = "whsec_test"

type HandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.T().Cleanup(ctrl.Finish)
	s.svc = mocks.NewMockService(ctrl)
	h := New(s.svc, logger.Discard())
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterWebhook(s.router, webhookSecret)
}

func (s *HandlerSuite) signed(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(webhookSecret, []byte(body)))
	return req
}

func (s *HandlerSuite) TestListStatusFilter() {
	s.svc.EXPECT().List(gomock.Any(), models.Query{
		Filter: models.Filter{Statuses: []models.Status{models.StatusPaid}},
		Page:   page.New(1, page.DefaultLimit),
	}).Return(page.Result[models.Detail]{Rows: []models.Detail{}}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/sales?status=paid"))
	testutil.AssertStatusOK(s.T(), rr)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/sales?status=refunded"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestCreateAcceptsStringMonths() {
	s.svc.EXPECT().Create(gomock.Any(), models.CreateRequest{CustomerID: "c", ProductID: "p", Months: 12}).
		Return(&models.Sale{ID: uuid.New(), Months: 12, Status: models.StatusPending}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/sales",
		`{"customerId":"c","productId":"p","months":"12"}`))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "pending")
}

func (s *HandlerSuite) TestPay() {
	s.svc.EXPECT().Pay(gomock.Any(), "s-1").Return(&models.Sale{Status: models.StatusPaid}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/sales/s-1/pay"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "paid")
}

func (s *HandlerSuite) TestInvoiceIsPDFAttachment() {
	s.svc.EXPECT().Invoice(gomock.Any(), "s-1").Return([]byte("%PDF-1.3 test"), nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/sales/s-1/invoice"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("application/pdf", rr.Header().Get("Content-Type"))
	s.Equal(`attachment; filename="fattura-s-1.pdf"`, rr.Header().Get("Content-Disposition"))
	s.Equal("%PDF-1.3 test", rr.Body.String())
}

func (s *HandlerSuite) TestInvoiceNotFound() {
	s.svc.EXPECT().Invoice(gomock.Any(), "s-2").Return(nil, dErrors.New(dErrors.CodeNotFound, "Sale not found"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/sales/s-2/invoice"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestWebhookSignedEvent() {
	body := `{"type":"invoice.paid","data":{"saleId":"s-1","subscriptionId":"sub_9"}}`
	var want models.WebhookEvent
	want.Type = "invoice.paid"
	want.Data.SaleID = "s-1"
	want.Data.SubscriptionID = "sub_9"
	s.svc.EXPECT().HandleWebhook(gomock.Any(), want).Return(service.WebhookResult{OK: true}, nil)

	rr := testutil.DoRequest(s.router, s.signed(body))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "ok", true)
}

func (s *HandlerSuite) TestWebhookBadSignature() {
	req := s.signed(`{"type":"invoice.paid"}`)
	req.Header.Set(signature.Header, "sha256=00")

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestWebhookMissingSaleID() {
	s.svc.EXPECT().HandleWebhook(gomock.Any(), gomock.Any()).
		Return(service.WebhookResult{}, dErrors.New(dErrors.CodeValidation, "saleId missing"))

	rr := testutil.DoRequest(s.router, s.signed(`{"type":"invoice.paid","data":{}}`))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}
