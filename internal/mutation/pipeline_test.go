package mutation

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	auditmodels "gestionale/internal/audit/models"
	"gestionale/internal/mutation/mocks"
	"gestionale/internal/platform/metrics"
	"gestionale/internal/policy"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/requestcontext"
)

type thing struct {
	ID string
}

type PipelineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	guard    *mocks.MockAuthorizer
	audit    *mocks.MockAuditWriter
	metrics  *metrics.Metrics
	pipeline *Pipeline
	steps    []string
	caller   requestcontext.Principal
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.guard = mocks.NewMockAuthorizer(s.ctrl)
	s.audit = mocks.NewMockAuditWriter(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.pipeline = New(s.guard, s.audit, WithMetrics(s.metrics))
	s.steps = nil
	s.caller = requestcontext.Principal{UserID: "user-1", Role: "SALES"}
}

func (s *PipelineSuite) TearDownTest() {
	s.ctrl.Finish()
}

// op builds an operation whose steps append to s.steps and can be made to fail.
func (s *PipelineSuite) op(validateErr, preErr, applyErr, notifyErr error) Operation[*thing] {
	return Operation[*thing]{
		Resource: policy.ResourceCustomers,
		Ability:  policy.Create,
		Action:   auditmodels.ActionCreate,
		Entity:   "Customer",
		Validate: func() error {
			s.steps = append(s.steps, "validate")
			return validateErr
		},
		Preconditions: func(ctx context.Context) error {
			s.steps = append(s.steps, "preconditions")
			return preErr
		},
		Apply: func(ctx context.Context) (*thing, error) {
			s.steps = append(s.steps, "apply")
			if applyErr != nil {
				return nil, applyErr
			}
			return &thing{ID: "c-1"}, nil
		},
		Audit: func(t *thing) (string, map[string]any) {
			return t.ID, map[string]any{"status": "lead"}
		},
		Notify: func(ctx context.Context, t *thing) error {
			s.steps = append(s.steps, "notify")
			return notifyErr
		},
	}
}

func (s *PipelineSuite) expectAuthenticated() {
	s.guard.EXPECT().Authenticate(gomock.Any()).DoAndReturn(func(context.Context) (requestcontext.Principal, error) {
		s.steps = append(s.steps, "authenticate")
		return s.caller, nil
	})
}

func (s *PipelineSuite) expectAuthorized(err error) {
	s.guard.EXPECT().Check(gomock.Any(), s.caller, policy.ResourceCustomers, policy.Create).
		DoAndReturn(func(context.Context, requestcontext.Principal, policy.Resource, policy.Ability) error {
			s.steps = append(s.steps, "authorize")
			return err
		})
}

func (s *PipelineSuite) TestSuccessRunsStepsInOrder() {
	s.expectAuthenticated()
	s.expectAuthorized(nil)
	s.audit.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e auditmodels.Entry) (*auditmodels.Record, error) {
			s.steps = append(s.steps, "record")
			s.Require().NotNil(e.UserID)
			s.Equal("user-1", *e.UserID)
			s.Equal(auditmodels.ActionCreate, e.Action)
			s.Equal("Customer", e.Entity)
			s.Equal("c-1", e.EntityID)
			s.Equal("lead", e.Metadata["status"])
			return &auditmodels.Record{ID: "a-1"}, nil
		})

	got, err := Run(context.Background(), s.pipeline, s.op(nil, nil, nil, nil))
	s.Require().NoError(err)
	s.Equal("c-1", got.ID)
	s.Equal([]string{"authenticate", "validate", "authorize", "preconditions", "apply", "record", "notify"}, s.steps)
	s.InDelta(1, promtest.ToFloat64(s.metrics.Mutations.WithLabelValues("Customer", "CREATE", "ok")), 0)
}

func (s *PipelineSuite) TestUnauthenticatedStopsBeforeValidation() {
	s.guard.EXPECT().Authenticate(gomock.Any()).Return(requestcontext.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))

	_, err := Run(context.Background(), s.pipeline, s.op(errors.New("bad"), nil, nil, nil))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Empty(s.steps)
}

func (s *PipelineSuite) TestValidationPrecedesAuthorization() {
	s.expectAuthenticated()

	_, err := Run(context.Background(), s.pipeline, s.op(errors.New("name must be at least 2 characters"), nil, nil, nil))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("name must be at least 2 characters", err.Error())
	s.Equal([]string{"authenticate", "validate"}, s.steps)
}

func (s *PipelineSuite) TestForbiddenWritesNothing() {
	s.expectAuthenticated()
	s.expectAuthorized(dErrors.New(dErrors.CodeForbidden, "forbidden"))

	_, err := Run(context.Background(), s.pipeline, s.op(nil, nil, nil, nil))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal([]string{"authenticate", "validate", "authorize"}, s.steps)
}

func (s *PipelineSuite) TestMissingReferenceStopsBeforeApply() {
	s.expectAuthenticated()
	s.expectAuthorized(nil)

	_, err := Run(context.Background(), s.pipeline, s.op(nil, dErrors.New(dErrors.CodeNotFound, "Product not found"), nil, nil))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.NotContains(s.steps, "apply")
}

func (s *PipelineSuite) TestApplyFailureIsNotAudited() {
	s.expectAuthenticated()
	s.expectAuthorized(nil)

	_, err := Run(context.Background(), s.pipeline, s.op(nil, nil, errors.New("db down"), nil))
	s.Error(err)
	s.NotContains(s.steps, "notify")
}

func (s *PipelineSuite) TestAuditFailureDoesNotFailRequest() {
	s.expectAuthenticated()
	s.expectAuthorized(nil)
	s.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil, errors.New("audit table locked"))

	got, err := Run(context.Background(), s.pipeline, s.op(nil, nil, nil, nil))
	s.Require().NoError(err)
	s.Equal("c-1", got.ID)
	s.InDelta(1, promtest.ToFloat64(s.metrics.AuditWriteFailures.WithLabelValues("Customer", "CREATE")), 0)
}

func (s *PipelineSuite) TestNotificationFailureIsSwallowed() {
	s.expectAuthenticated()
	s.expectAuthorized(nil)
	s.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Return(&auditmodels.Record{}, nil)

	_, err := Run(context.Background(), s.pipeline, s.op(nil, nil, nil, errors.New("smtp refused")))
	s.Require().NoError(err)
	s.InDelta(1, promtest.ToFloat64(s.metrics.NotificationFailures.WithLabelValues("Customer")), 0)
}

func (s *PipelineSuite) TestNotificationSurvivesCancelledRequest() {
	s.expectAuthenticated()
	s.expectAuthorized(nil)
	s.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Return(&auditmodels.Record{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	op := s.op(nil, nil, nil, nil)
	op.Apply = func(context.Context) (*thing, error) {
		cancel()
		return &thing{ID: "c-1"}, nil
	}
	var notifyErr error
	op.Notify = func(nctx context.Context, _ *thing) error {
		notifyErr = nctx.Err()
		return nil
	}

	_, err := Run(ctx, s.pipeline, op)
	s.Require().NoError(err)
	s.NoError(notifyErr)
}

func (s *PipelineSuite) TestRunSystemRecordsNullActor() {
	s.audit.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e auditmodels.Entry) (*auditmodels.Record, error) {
			s.Nil(e.UserID)
			return &auditmodels.Record{}, nil
		})

	op := s.op(nil, nil, nil, nil)
	op.Notify = nil
	_, err := RunSystem(context.Background(), s.pipeline, op)
	s.Require().NoError(err)
	s.Equal([]string{"validate", "preconditions", "apply"}, s.steps)
}
