// Package service implements login sessions, identity resolution and user management.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	auditmodels "gestionale/internal/audit/models"
	"gestionale/internal/identity/device"
	"gestionale/internal/identity/models"
	"gestionale/internal/mutation"
	"gestionale/internal/platform/metrics"
	"gestionale/internal/policy"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// Authorizer is satisfied by *policy.Guard.
type Authorizer interface {
	Authenticate(ctx context.Context) (requestcontext.Principal, error)
	Authorize(ctx context.Context, resource policy.Resource, ability policy.Ability) (requestcontext.Principal, error)
}

// LoginResult carries the signed cookie value for the handler to set.
type LoginResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	users    UserStore
	sessions SessionStore
	tokens   *TokenSigner
	guard    Authorizer
	pipeline *mutation.Pipeline
	limiter  *LoginLimiter
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entropy io.Reader
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLoginLimiter(l *LoginLimiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// New constructs a Service.
func New(users UserStore, sessions SessionStore, tokens *TokenSigner, guard Authorizer, pipeline *mutation.Pipeline, opts ...Option) *Service {
	s := &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		guard:    guard,
		pipeline: pipeline,
		ttl:      7 * 24 * time.Hour,
		logger:   slog.New(slog.DiscardHandler),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	if !s.limiter.Allow(requestcontext.ClientIP(ctx)) {
		s.countLogin("rate_limited")
		return nil, dErrors.New(dErrors.CodeRateLimited, "too many login attempts, retry later")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.countLogin("invalid")
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if user == nil {
		_ = VerifyPassword(string(dummyHash), req.Password)
		s.countLogin("failed")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Invalid credentials")
	}
	if err := VerifyPassword(user.PasswordHash, req.Password); err != nil {
		s.countLogin("failed")
		s.logger.InfoContext(ctx, "login rejected", "user_id", user.ID, "client_ip", requestcontext.ClientIP(ctx))
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Invalid credentials")
	}

	now := requestcontext.Now(ctx).UTC()
	session := &models.Session{
		ID:        s.newSessionID(now),
		UserID:    user.ID,
		Device:    device.Label(requestcontext.UserAgent(ctx)),
		ClientIP:  requestcontext.ClientIP(ctx),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	token, err := s.tokens.Issue(user.ID.String(), session.ID, now, session.ExpiresAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session")
	}

	s.countLogin("ok")
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID,
		"session_id", session.ID,
		"device", session.Device,
	)
	return &LoginResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Logout deletes the session named by token. Invalid tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}
	return nil
}

// ResolveSession maps a cookie value to its principal. The role is read from
// the user record so role changes apply to open sessions.
func (s *Service) ResolveSession(ctx context.Context, token string) (requestcontext.Principal, string, bool, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return requestcontext.Principal{}, "", false, nil
	}
	session, err := s.sessions.Find(ctx, claims.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return requestcontext.Principal{}, "", false, nil
	}
	if err != nil {
		return requestcontext.Principal{}, "", false, err
	}
	if session.UserID.String() != claims.Subject || session.IsExpired(requestcontext.Now(ctx)) {
		return requestcontext.Principal{}, "", false, nil
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return requestcontext.Principal{}, "", false, nil
	}
	if err != nil {
		return requestcontext.Principal{}, "", false, err
	}
	return requestcontext.Principal{
		UserID: user.ID.String(),
		Email:  user.Email,
		Name:   user.Name,
		Role:   string(user.Role),
	}, session.ID, true, nil
}

// Me describes the caller; anonymous callers get an empty result, never an error.
func (s *Service) Me(ctx context.Context) (models.Me, error) {
	p, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		return models.Me{}, nil
	}
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return models.Me{}, nil
	}
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Me{}, nil
	}
	if err != nil {
		return models.Me{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	me := models.Me{User: user}
	if sid := requestcontext.SessionID(ctx); sid != "" {
		session, err := s.sessions.Find(ctx, sid)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return models.Me{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
		}
		if session != nil {
			me.Session = &models.SessionSummary{Device: session.Device, ExpiresAt: session.ExpiresAt}
		}
	}
	return me, nil
}

// Permissions returns the policy table row of the caller's role.
func (s *Service) Permissions(ctx context.Context) (models.Permissions, error) {
	p, err := s.guard.Authenticate(ctx)
	if err != nil {
		return models.Permissions{}, err
	}
	role, _ := policy.ParseRole(p.Role)
	return models.Permissions{Role: role, Permissions: policy.Grants(role)}, nil
}

// ListUsers returns every user ordered by name.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	if _, err := s.guard.Authorize(ctx, policy.ResourceUsers, policy.Read); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// CreateUser adds an operator account.
func (s *Service) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	req.Normalize()
	return mutation.Run(ctx, s.pipeline, mutation.Operation[*models.User]{
		Resource: policy.ResourceUsers,
		Ability:  policy.Create,
		Action:   auditmodels.ActionCreate,
		Entity:   "User",
		Validate: req.Validate,
		Apply: func(ctx context.Context) (*models.User, error) {
			return s.createUser(ctx, req)
		},
		Audit: func(u *models.User) (string, map[string]any) {
			return u.ID.String(), map[string]any{"email": u.Email, "role": string(u.Role)}
		},
	})
}

func (s *Service) createUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	role, _ := policy.ParseRole(req.Role)
	user := &models.User{
		ID:           uuid.New(),
		Email:        req.Email,
		Name:         req.Name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx).UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeValidation, "email already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return user, nil
}

// Bootstrap creates an ADMIN with the given credentials unless the email is
// already registered. It runs at start, outside any request.
func (s *Service) Bootstrap(ctx context.Context, address, password string) error {
	if address == "" || password == "" {
		return nil
	}
	req := models.CreateUserRequest{Email: address, Role: string(policy.RoleAdmin), Password: password}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}
	user, err := s.createUser(ctx, req)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "bootstrap administrator created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (s *Service) newSessionID(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementLogin(outcome)
	}
}
