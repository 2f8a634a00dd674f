// Package auth resolves the caller's session cookie into a request principal.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/httputil"
	"gestionale/pkg/requestcontext"
)

// SessionResolver turns a session token into the principal it belongs to.
// ok is false for missing, malformed, expired or revoked tokens; err is
// reserved for infrastructure failures.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (p requestcontext.Principal, sessionID string, ok bool, err error)
}

// Authenticate attaches the principal for a valid session cookie and lets
// anonymous requests through untouched. Routes that need a caller add RequirePrincipal.
func Authenticate(resolver SessionResolver, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			p, sessionID, ok, err := resolver.ResolveSession(ctx, cookie.Value)
			if err != nil {
				logger.ErrorContext(ctx, "session resolution failed",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "session lookup failed"))
				return
			}
			if !ok {
				logger.DebugContext(ctx, "ignoring invalid session cookie",
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, p)
			ctx = requestcontext.WithSessionID(ctx, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePrincipal rejects anonymous requests with 401 before the handler runs,
// so request bodies of unauthenticated callers are never parsed.
func RequirePrincipal(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := requestcontext.PrincipalFrom(ctx); !ok {
				logger.WarnContext(ctx, "unauthenticated request",
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
