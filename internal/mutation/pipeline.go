// Package mutation runs every state-changing operation through one ordered pipeline:
//
//  1. authenticate the caller
//  2. validate the payload
//  3. authorize (resource, ability) against the policy table
//  4. resolve preconditions such as referenced records
//  5. apply the change through the store
//  6. record one audit entry
//  7. notify, when the operation has a notification
//
// The HTTP handler performs step 8 by writing the returned value. A failure in
// steps 1-5 returns an error and leaves no audit record. Failures in steps 6
// and 7 are logged and counted but never fail the request: the change is
// already committed.
package mutation

//go:generate mockgen -source=pipeline.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	auditmodels "gestionale/internal/audit/models"
	"gestionale/internal/platform/metrics"
	"gestionale/internal/policy"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/requestcontext"
)

const defaultNotifyTimeout = 10 * time.Second

// Authorizer is the subset of policy.Guard the pipeline needs.
type Authorizer interface {
	Authenticate(ctx context.Context) (requestcontext.Principal, error)
	Check(ctx context.Context, p requestcontext.Principal, resource policy.Resource, ability policy.Ability) error
}

// AuditWriter appends audit entries.
type AuditWriter interface {
	Record(ctx context.Context, entry auditmodels.Entry) (*auditmodels.Record, error)
}

// Pipeline holds the collaborators shared by every operation.
type Pipeline struct {
	guard         Authorizer
	audit         AuditWriter
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	notifyTimeout time.Duration
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.notifyTimeout = d
	}
}

// New constructs a Pipeline.
func New(guard Authorizer, audit AuditWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		guard:         guard,
		audit:         audit,
		logger:        slog.New(slog.DiscardHandler),
		tracer:        otel.Tracer("gestionale/mutation"),
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Operation describes one mutation of one entity kind.
type Operation[T any] struct {
	Resource policy.Resource
	Ability  policy.Ability
	Action   auditmodels.Action
	// Entity is the audit entity kind, e.g. "Customer".
	Entity string

	// Validate checks the payload. Uncoded errors become validation errors.
	Validate func() error
	// Preconditions loads referenced records; optional.
	Preconditions func(ctx context.Context) error
	// Apply performs the write and returns the resulting record.
	Apply func(ctx context.Context) (T, error)
	// Audit extracts the entity id and the changed-field snapshot.
	Audit func(result T) (entityID string, metadata map[string]any)
	// Notify sends the operation's notification; optional.
	Notify func(ctx context.Context, result T) error
}

// Run executes op for the authenticated caller.
func Run[T any](ctx context.Context, p *Pipeline, op Operation[T]) (T, error) {
	var zero T
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "mutation."+op.Entity+"."+string(op.Action))
	defer span.End()
	span.SetAttributes(
		attribute.String("entity", op.Entity),
		attribute.String("action", string(op.Action)),
	)

	principal, err := p.guard.Authenticate(ctx)
	if err != nil {
		return zero, p.fail(ctx, span, op.Entity, op.Action, "unauthenticated", start, err)
	}
	if err := validate(op.Validate); err != nil {
		return zero, p.fail(ctx, span, op.Entity, op.Action, "invalid", start, err)
	}
	if err := p.guard.Check(ctx, principal, op.Resource, op.Ability); err != nil {
		return zero, p.fail(ctx, span, op.Entity, op.Action, "forbidden", start, err)
	}

	userID := principal.UserID
	return execute(ctx, p, span, op, &userID, start)
}

// RunSystem executes op on behalf of the system, for callers that were
// authenticated out of band (a signed webhook). The audit record has no actor.
func RunSystem[T any](ctx context.Context, p *Pipeline, op Operation[T]) (T, error) {
	var zero T
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "mutation.system."+op.Entity+"."+string(op.Action))
	defer span.End()
	span.SetAttributes(
		attribute.String("entity", op.Entity),
		attribute.String("action", string(op.Action)),
		attribute.Bool("system", true),
	)

	if err := validate(op.Validate); err != nil {
		return zero, p.fail(ctx, span, op.Entity, op.Action, "invalid", start, err)
	}
	return execute(ctx, p, span, op, nil, start)
}

func execute[T any](ctx context.Context, p *Pipeline, span trace.Span, op Operation[T], userID *string, start time.Time) (T, error) {
	var zero T
	if op.Preconditions != nil {
		if err := op.Preconditions(ctx); err != nil {
			return zero, p.fail(ctx, span, op.Entity, op.Action, "precondition", start, err)
		}
	}

	result, err := op.Apply(ctx)
	if err != nil {
		return zero, p.fail(ctx, span, op.Entity, op.Action, "apply_failed", start, err)
	}

	entityID, metadata := op.Audit(result)
	span.SetAttributes(attribute.String("entity_id", entityID))
	p.record(ctx, auditmodels.Entry{
		UserID:   userID,
		Action:   op.Action,
		Entity:   op.Entity,
		EntityID: entityID,
		Metadata: metadata,
	})

	if op.Notify != nil {
		p.notify(ctx, op.Entity, entityID, func(nctx context.Context) error {
			return op.Notify(nctx, result)
		})
	}

	if p.metrics != nil {
		p.metrics.ObserveMutation(op.Entity, string(op.Action), "ok", start)
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func validate(fn func() error) error {
	if fn == nil {
		return nil
	}
	err := fn()
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.New(dErrors.CodeValidation, err.Error())
}

func (p *Pipeline) record(ctx context.Context, entry auditmodels.Entry) {
	if _, err := p.audit.Record(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "audit write failed after committed mutation",
			"error", err,
			"entity", entry.Entity,
			"entity_id", entry.EntityID,
			"action", string(entry.Action),
			"request_id", requestcontext.RequestID(ctx),
		)
		if p.metrics != nil {
			p.metrics.IncrementAuditWriteFailure(entry.Entity, string(entry.Action))
		}
	}
}

// notify runs fn with a context detached from request cancellation so a client
// disconnect does not abort an in-flight email.
func (p *Pipeline) notify(ctx context.Context, entity, entityID string, fn func(context.Context) error) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.notifyTimeout)
	defer cancel()
	if err := fn(nctx); err != nil {
		p.logger.WarnContext(ctx, "notification failed",
			"error", err,
			"entity", entity,
			"entity_id", entityID,
			"request_id", requestcontext.RequestID(ctx),
		)
		if p.metrics != nil {
			p.metrics.IncrementNotificationFailure(entity)
		}
	}
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, entity string, action auditmodels.Action, outcome string, start time.Time, err error) error {
	span.SetAttributes(attribute.String("outcome", outcome))
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		p.logger.ErrorContext(ctx, "mutation failed",
			"error", err,
			"entity", entity,
			"action", string(action),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if p.metrics != nil {
		p.metrics.ObserveMutation(entity, string(action), outcome, start)
	}
	return err
}
