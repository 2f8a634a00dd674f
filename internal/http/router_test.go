package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	audithandler "gestionale/internal/audit/handler"
	auditservice "gestionale/internal/audit/service"
	customerhandler "gestionale/internal/customer/handler"
	customerservice "gestionale/internal/customer/service"
	identityhandler "gestionale/internal/identity/handler"
	identityservice "gestionale/internal/identity/service"
	"gestionale/internal/mutation"
	"gestionale/internal/notify"
	"gestionale/internal/platform/logger"
	"gestionale/internal/platform/metrics"
	"gestionale/internal/policy"
	producthandler "gestionale/internal/product/handler"
	productservice "gestionale/internal/product/service"
	reporthandler "gestionale/internal/report/handler"
	reportservice "gestionale/internal/report/service"
	salehandler "gestionale/internal/sale/handler"
	saleservice "gestionale/internal/sale/service"
	"gestionale/internal/storage/memory"
	tickethandler "gestionale/internal/ticket/handler"
	ticketservice "gestionale/internal/ticket/service"
	"gestionale/pkg/platform/middleware/metadata"
	"gestionale/pkg/platform/middleware/signature"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-secret"
	salesTeam     = "sales-team@example.com"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

type RouterSuite struct {
	suite.Suite
	db      *memory.DB
	mail    *outbox
	deps    Deps
	handler http.Handler
	admin   *http.Cookie
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	log := logger.Discard()
	s.db = memory.New()
	s.mail = &outbox{}

	guard := policy.NewGuard(log)
	audits := auditservice.New(s.db.Audit(), guard)
	pipeline := mutation.New(guard, audits)
	identity := identityservice.New(s.db.Users(), memory.NewSessionStore(), identityservice.NewTokenSigner("test-secret"), guard, pipeline)
	customers := customerservice.New(s.db.Customers(), guard, pipeline, customerservice.WithLeadNotification(s.mail, salesTeam))
	products := productservice.New(s.db.Products(), guard, pipeline)
	sales := saleservice.New(s.db.Sales(), s.db.Customers(), s.db.Products(), guard, pipeline)
	tickets := ticketservice.New(s.db.Tickets(), s.db.Customers(), s.db.Users(), guard, pipeline)
	reports := reportservice.New(s.db.Reports(), guard, 5000)

	s.Require().NoError(identity.Bootstrap(context.Background(), adminEmail, adminPassword))
	s.deps = Deps{
		Logger:        log,
		Metrics:       metrics.New(prometheus.NewRegistry()),
		Sessions:      identity,
		WebhookSecret: "whsec",
		Ready:         map[string]Pinger{"memory": func(context.Context) error { return nil }},
		Identity:      identityhandler.New(identity, log, false),
		Customers:     customerhandler.New(customers, log),
		Products:      producthandler.New(products, log),
		Sales:         salehandler.New(sales, log),
		Tickets:       tickethandler.New(tickets, log),
		Reports:       reporthandler.New(reports, log),
		Audit:         audithandler.New(audits, log),
	}
	s.handler = NewRouter(s.deps)
	s.admin = s.login(adminEmail, adminPassword)
}

func (s *RouterSuite) do(method, path string, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *RouterSuite) decode(rr *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (s *RouterSuite) login(email, password string) *http.Cookie {
	rr := s.do(http.MethodPost, "/auth/login", nil, `{"email":"`+email+`","password":"`+password+`"}`)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == identityhandler.CookieName {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	s.Require().Fail("no session cookie")
	return nil
}

// operator creates a user with role through the API and logs in as them.
func (s *RouterSuite) operator(role string) *http.Cookie {
	email := role + "@example.com"
	rr := s.do(http.MethodPost, "/users", s.admin, `{"email":"`+email+`","role":"`+role+`","password":"operator-pw"}`)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return s.login(email, "operator-pw")
}

func (s *RouterSuite) create(path string, cookie *http.Cookie, body string) string {
	rr := s.do(http.MethodPost, path, cookie, body)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return s.decode(rr)["id"].(string)
}

func (s *RouterSuite) auditRows(query string) []any {
	rr := s.do(http.MethodGet, "/audit?"+query, s.admin, "")
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return s.decode(rr)["rows"].([]any)
}

func (s *RouterSuite) TestOperationalEndpoints() {
	rr := s.do(http.MethodGet, "/healthz", nil, "")
	s.Equal(http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/readyz", nil, "")
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"memory":"up"`)

	rr = s.do(http.MethodGet, "/metrics", nil, "")
	s.Equal(http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/nope", s.admin, "")
	s.Equal(http.StatusNotFound, rr.Code)
	s.Equal("not_found", s.decode(rr)["error"])
}

func (s *RouterSuite) TestReadinessReportsDownDependency() {
	d := s.deps
	d.Metrics = nil
	d.Ready = map[string]Pinger{"postgres": func(context.Context) error { return errors.New("refused") }}
	rr := httptest.NewRecorder()
	NewRouter(d).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
	s.Contains(rr.Body.String(), `"postgres":"down"`)
}

func (s *RouterSuite) TestWebhookRequiresSignature() {
	body := `{"type":"invoice.paid","data":{"saleId":"00000000-0000-0000-0000-000000000001"}}`
	rr := s.do(http.MethodPost, "/webhooks/payments", nil, body)
	s.Equal(http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewBufferString(body))
	req.Header.Set(signature.Header, signature.Sign("whsec", []byte(body)))
	rr = httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *RouterSuite) TestMeIsPublic() {
	rr := s.do(http.MethodGet, "/auth/me", nil, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Nil(s.decode(rr)["user"])

	rr = s.do(http.MethodGet, "/auth/me", s.admin, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	user := s.decode(rr)["user"].(map[string]any)
	s.Equal("ADMIN", user["role"])
}

func (s *RouterSuite) TestSupportCannotDeleteCustomer() {
	id := s.create("/customers", s.admin, `{"name":"Acme","email":"ops@acme.io","status":"active"}`)
	support := s.operator("SUPPORT")
	before := len(s.auditRows("entity=Customer"))

	rr := s.do(http.MethodDelete, "/customers/"+id, support, "")
	s.Equal(http.StatusForbidden, rr.Code)
	s.Equal("forbidden", s.decode(rr)["error"])

	s.Len(s.auditRows("entity=Customer"), before)
	rr = s.do(http.MethodGet, "/customers/"+id, support, "")
	s.Equal(http.StatusOK, rr.Code)
}

func (s *RouterSuite) TestSalesCreatesLead() {
	sales := s.operator("SALES")

	id := s.create("/customers", sales, `{"name":"Globex","email":"hello@globex.com","status":"lead"}`)

	rr := s.do(http.MethodGet, "/customers/"+id, sales, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("lead", s.decode(rr)["status"])

	rows := s.auditRows("entity=Customer&action=CREATE")
	s.Require().Len(rows, 1)
	s.Equal(id, rows[0].(map[string]any)["entityId"])

	s.Require().Len(s.mail.sent, 1)
	s.Equal([]string{salesTeam}, s.mail.sent[0].To)
}

func (s *RouterSuite) TestAnonymousRejectedBeforeBodyIsRead() {
	for _, body := range []string{`{"name":"x"}`, `{not json`} {
		rr := s.do(http.MethodPatch, "/products/00000000-0000-0000-0000-000000000001", nil, body)
		s.Equal(http.StatusUnauthorized, rr.Code)
		s.Equal("unauthorized", s.decode(rr)["error"])
	}
}

func (s *RouterSuite) TestAdminMarksSalePaid() {
	customer := s.create("/customers", s.admin, `{"name":"Initech","email":"bill@initech.com","status":"active"}`)
	product := s.create("/products", s.admin, `{"name":"CRM Pro","monthly":29.99,"kind":"SaaS"}`)
	sale := s.create("/sales", s.admin, `{"customerId":"`+customer+`","productId":"`+product+`","months":2}`)

	rr := s.do(http.MethodGet, "/sales/"+sale, s.admin, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	detail := s.decode(rr)
	s.Equal("pending", detail["status"])
	s.Equal("past_due", detail["subscription"].(map[string]any)["status"])

	rr = s.do(http.MethodPost, "/sales/"+sale+"/pay", s.admin, "")
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal("paid", s.decode(rr)["status"])

	rr = s.do(http.MethodGet, "/sales/"+sale, s.admin, "")
	detail = s.decode(rr)
	s.Equal("paid", detail["status"])
	s.Equal("active", detail["subscription"].(map[string]any)["status"])

	rows := s.auditRows("action=PAY")
	s.Require().Len(rows, 1)
	s.Equal(sale, rows[0].(map[string]any)["entityId"])
}

func (s *RouterSuite) TestEmptyAuditExport() {
	s.create("/customers", s.admin, `{"name":"Acme","email":"ops@acme.io"}`)

	for _, format := range []string{"csv", "xlsx", "pdf"} {
		s.Run(format, func() {
			rr := s.do(http.MethodGet, "/audit/export?format="+format+"&from=2001-01-01&to=2001-01-31", s.admin, "")
			s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
			s.Equal(`attachment; filename="audit.`+format+`"`, rr.Header().Get("Content-Disposition"))
			s.NotEmpty(rr.Body.Bytes())
			if format == "csv" {
				lines := bytes.Split(bytes.TrimSpace(rr.Body.Bytes()), []byte("\n"))
				s.Len(lines, 1)
			}
		})
	}
}

func (s *RouterSuite) TestHugePageIsEmpty() {
	s.create("/customers", s.admin, `{"name":"Acme","email":"ops@acme.io"}`)

	for _, path := range []string{"/customers?page=4611686018427387904", "/audit?page=4611686018427387904&limit=100"} {
		rr := s.do(http.MethodGet, path, s.admin, "")
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		body := s.decode(rr)
		s.Empty(body["rows"])
		s.NotZero(body["total"])
	}
}

func (s *RouterSuite) TestAuditExportForbiddenBeforeFormatCheck() {
	support := s.operator("SUPPORT")

	for _, query := range []string{"format=bogus", "action=ARCHIVE", "format=csv"} {
		rr := s.do(http.MethodGet, "/audit/export?"+query, support, "")
		s.Equal(http.StatusForbidden, rr.Code, query)
	}
}

func (s *RouterSuite) TestLoginThrottleIgnoresForgedForwardedFor() {
	log := logger.Discard()
	guard := policy.NewGuard(log)
	pipeline := mutation.New(guard, auditservice.New(s.db.Audit(), guard))
	identity := identityservice.New(s.db.Users(), memory.NewSessionStore(), identityservice.NewTokenSigner("test-secret"), guard, pipeline,
		identityservice.WithLoginLimiter(identityservice.NewLoginLimiter(2)),
	)
	proxied, err := metadata.NewClientIPResolver([]string{"10.0.0.0/8"})
	s.Require().NoError(err)

	cases := []struct {
		name     string
		resolver *metadata.ClientIPResolver
		remote   string
		xff      func(i int) string
	}{
		{name: "direct client rotating header", remote: "198.51.100.7:40000", xff: func(i int) string { return fmt.Sprintf("203.0.113.%d", i+1) }},
		{name: "behind proxy with forged left hops", resolver: proxied, remote: "10.0.0.5:40000", xff: func(i int) string { return fmt.Sprintf("203.0.113.%d, 198.51.100.8", i+1) }},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			d := s.deps
			d.Metrics = nil
			d.ClientIP = tc.resolver
			d.Sessions = identity
			d.Identity = identityhandler.New(identity, log, false)
			h := NewRouter(d)

			var codes []int
			for i := 0; i < 5; i++ {
				req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"`+adminEmail+`","password":"wrong-password"}`))
				req.Header.Set("Content-Type", "application/json")
				req.RemoteAddr = tc.remote
				req.Header.Set("X-Forwarded-For", tc.xff(i))
				rr := httptest.NewRecorder()
				h.ServeHTTP(rr, req)
				codes = append(codes, rr.Code)
			}
			s.Equal([]int{401, 401, 429, 429, 429}, codes)
		})
	}
}
