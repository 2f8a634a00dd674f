//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gestionale/internal/identity/models"
	sessionstore "gestionale/internal/storage/redis"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/testutil/containers"
)

type SessionStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *sessionstore.SessionStore
}

func TestSessionStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = sessionstore.NewSessionStore(s.redis.Client)
}

func (s *SessionStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func newSession(ttl time.Duration) *models.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Session{
		ID:        uuid.NewString(),
		UserID:    uuid.New(),
		Device:    "Chrome on macOS",
		ClientIP:  "203.0.113.7",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *SessionStoreSuite) TestSaveAndFind() {
	ctx := context.Background()
	session := newSession(time.Hour)
	s.Require().NoError(s.store.Save(ctx, session))

	found, err := s.store.Find(ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(session.UserID, found.UserID)
	s.Equal(session.Device, found.Device)
	s.True(session.ExpiresAt.Equal(found.ExpiresAt))

	ttl, err := s.redis.Client.TTL(ctx, "session:"+session.ID).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
	s.LessOrEqual(ttl, time.Hour)
}

func (s *SessionStoreSuite) TestExpiredSessionIsNotStored() {
	ctx := context.Background()
	session := newSession(-time.Minute)
	s.Require().NoError(s.store.Save(ctx, session))

	_, err := s.store.Find(ctx, session.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SessionStoreSuite) TestDelete() {
	ctx := context.Background()
	session := newSession(time.Hour)
	s.Require().NoError(s.store.Save(ctx, session))

	s.Require().NoError(s.store.Delete(ctx, session.ID))
	_, err := s.store.Find(ctx, session.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.NoError(s.store.Delete(ctx, session.ID), "deleting a missing session is not an error")
}
