package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gestionale/internal/customer/handler/mocks"
	"gestionale/internal/customer/models"
	"gestionale/internal/platform/logger"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/page"
	"gestionale/pkg/testutil"
)

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
	s.router = chi.NewRouter()
	New(s.svc, logger.Discard()).Register(s.router)
}

func (s *HandlerSuite) TestListParsesFilters() {
	s.svc.EXPECT().List(gomock.Any(), models.Query{
		Filter: models.Filter{Q: "acme", Statuses: []models.Status{models.StatusLead, models.StatusActive}},
		Page:   page.New(2, 5),
	}).Return(page.Result[models.Customer]{Rows: []models.Customer{}, Total: 7, Page: 2, Limit: 5}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/customers?q=acme&status=lead,active&page=2&limit=5"))
	testutil.AssertStatusOK(s.T(), rr)

	var body page.Result[models.Customer]
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	s.Equal(7, body.Total)
	s.NotNil(body.Rows)
}

func (s *HandlerSuite) TestListRejectsUnknownStatus() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/customers?status=vip"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestCreate() {
	id := uuid.New()
	s.svc.EXPECT().Create(gomock.Any(), models.CreateRequest{Name: "Acme", Email: "a@acme.it"}).
		Return(&models.Customer{ID: id, Name: "Acme", Email: "a@acme.it", Status: models.StatusLead}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/customers",
		map[string]string{"name": "Acme", "email": "a@acme.it"}))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "lead")
}

func (s *HandlerSuite) TestCreateMalformedBody() {
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/customers", "{"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestServiceErrorsMapToStatus() {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{dErrors.New(dErrors.CodeUnauthorized, "authentication required"), http.StatusUnauthorized, "unauthorized"},
		{dErrors.New(dErrors.CodeForbidden, "forbidden"), http.StatusForbidden, "forbidden"},
		{dErrors.New(dErrors.CodeNotFound, "Customer not found"), http.StatusNotFound, "not_found"},
		{dErrors.New(dErrors.CodeValidation, "invalid email"), http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		s.Run(tt.code, func() {
			s.svc.EXPECT().Get(gomock.Any(), "abc").Return(nil, tt.err)
			rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/customers/abc"))
			testutil.AssertStatusAndError(s.T(), rr, tt.status, tt.code)
		})
	}
}

func (s *HandlerSuite) TestUpdatePassesPathID() {
	status := "churn"
	s.svc.EXPECT().Update(gomock.Any(), "c-1", models.UpdateRequest{Status: &status}).
		Return(&models.Customer{Status: models.StatusChurn}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, "/customers/c-1", map[string]string{"status": "churn"}))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *HandlerSuite) TestDeleteAnswersOK() {
	id := uuid.New()
	s.svc.EXPECT().Delete(gomock.Any(), id.String()).Return(id, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/customers/"+id.String()))
	testutil.AssertStatusOK(s.T(), rr)

	var body struct {
		OK bool      `json:"ok"`
		ID uuid.UUID `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	s.True(body.OK)
	s.Equal(id, body.ID)
}
