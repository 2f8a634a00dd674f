package policy

import (
	"context"
	"log/slog"

	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/requestcontext"
)

// Guard resolves the caller from the request context and checks the table.
type Guard struct {
	logger *slog.Logger
}

// NewGuard returns a Guard. A nil logger discards denial logs.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guard{logger: logger}
}

// Authenticate returns the caller or a CodeUnauthorized error.
func (g *Guard) Authenticate(ctx context.Context) (requestcontext.Principal, error) {
	p, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		return requestcontext.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}

// Authorize authenticates the caller and checks (resource, ability) for its role.
// Unknown roles hold no abilities.
func (g *Guard) Authorize(ctx context.Context, resource Resource, ability Ability) (requestcontext.Principal, error) {
	p, err := g.Authenticate(ctx)
	if err != nil {
		return p, err
	}
	if err := g.Check(ctx, p, resource, ability); err != nil {
		return requestcontext.Principal{}, err
	}
	return p, nil
}

// Check applies the table to an already authenticated principal.
func (g *Guard) Check(ctx context.Context, p requestcontext.Principal, resource Resource, ability Ability) error {
	role, _ := ParseRole(p.Role)
	if Can(role, resource, ability) {
		return nil
	}
	g.logger.WarnContext(ctx, "authorization denied",
		"user_id", p.UserID,
		"role", p.Role,
		"resource", string(resource),
		"ability", string(ability),
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(dErrors.CodeForbidden, "forbidden")
}
