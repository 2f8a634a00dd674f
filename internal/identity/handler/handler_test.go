package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gestionale/internal/identity/handler/mocks"
	"gestionale/internal/identity/models"
	"gestionale/internal/identity/service"
	"gestionale/internal/platform/logger"
	"gestionale/internal/policy"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/testutil"
)

func newRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	h := New(svc, logger.Discard(), false)
	h.RegisterPublic(r)
	h.Register(r)
	return r, svc
}

func TestLoginSetsSessionCookie(t *testing.T) {
	r, svc := newRouter(t)
	user := &models.User{ID: uuid.New(), Email: "admin@example.com", Name: "Admin", Role: policy.RoleAdmin}
	svc.EXPECT().Login(gomock.Any(), models.LoginRequest{Email: "admin@example.com", Password: "secret123"}).
		Return(&service.LoginResult{User: user, Token: "signed-token", ExpiresAt: time.Now().Add(time.Hour)}, nil)

	rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "admin@example.com", "password": "secret123"}))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "ok", true)

	c := testutil.ResponseCookie(rr, CookieName)
	require.NotNil(t, c)
	assert.Equal(t, "signed-token", c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
	assert.Positive(t, c.MaxAge)
	assert.NotContains(t, rr.Body.String(), "passwordHash")
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad credentials", dErrors.New(dErrors.CodeUnauthorized, "Invalid credentials"), http.StatusUnauthorized, "unauthorized"},
		{"rate limited", dErrors.New(dErrors.CodeRateLimited, "too many login attempts, retry later"), http.StatusTooManyRequests, "rate_limited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, svc := newRouter(t)
			svc.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			rr := testutil.DoRequest(r, testutil.NewRequestWithBody(t, http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"x"}`))
			testutil.AssertStatusAndError(t, rr, tt.status, tt.code)
			assert.Empty(t, rr.Result().Cookies())
		})
	}
}

func TestLogoutClearsCookieEvenOnFailure(t *testing.T) {
	r, svc := newRouter(t)
	svc.EXPECT().Logout(gomock.Any(), "signed-token").Return(errors.New("store down"))

	req := testutil.NewRequest(t, http.MethodPost, "/auth/logout")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "signed-token"})
	rr := testutil.DoRequest(r, req)
	testutil.AssertStatusOK(t, rr)

	c := testutil.ResponseCookie(rr, CookieName)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
}

func TestMeAnonymous(t *testing.T) {
	r, svc := newRouter(t)
	svc.EXPECT().Me(gomock.Any()).Return(models.Me{}, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/auth/me"))
	testutil.AssertStatusOK(t, rr)
	assert.JSONEq(t, `{"user":null,"session":null}`, rr.Body.String())
}

func TestPermissionsAndUsers(t *testing.T) {
	r, svc := newRouter(t)
	svc.EXPECT().Permissions(gomock.Any()).Return(models.Permissions{
		Role:        policy.RoleSupport,
		Permissions: policy.Grants(policy.RoleSupport),
	}, nil)
	svc.EXPECT().ListUsers(gomock.Any()).Return([]models.User{}, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/auth/permissions"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "role", "SUPPORT")

	rr = testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/users"))
	testutil.AssertStatusOK(t, rr)
	assert.JSONEq(t, `{"rows":[]}`, rr.Body.String())
}

func TestCreateUserForbidden(t *testing.T) {
	r, svc := newRouter(t)
	svc.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeForbidden, "forbidden"))

	rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/users",
		map[string]string{"email": "new@example.com", "role": "SALES", "password": "secret123"}))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}
