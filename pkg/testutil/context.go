package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"gestionale/pkg/requestcontext"
)

// Caller returns a principal with a fresh user id for role.
func Caller(role string) requestcontext.Principal {
	id := uuid.New().String()
	return requestcontext.Principal{UserID: id, Email: role + "@example.com", Name: role, Role: role}
}

// As attaches p to ctx, the way the session middleware does for authenticated requests.
func As(ctx context.Context, p requestcontext.Principal) context.Context {
	return requestcontext.WithPrincipal(ctx, p)
}

// At pins the request clock of ctx to t.
func At(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}

// WithPrincipal attaches p to the request context.
func WithPrincipal(req *http.Request, p requestcontext.Principal) *http.Request {
	return req.WithContext(As(req.Context(), p))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
