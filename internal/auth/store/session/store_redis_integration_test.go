//go:build integration

package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"findiff/internal/auth/models"
	"findiff/internal/auth/store/session"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = session.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	err := s.redis.FlushAll(context.Background())
	s.Require().NoError(err)
}

func makeSession(userID id.UserID) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:                id.SessionID(uuid.New()),
		UserID:            userID,
		Status:            models.SessionStatusActive,
		RefreshJTI:        uuid.NewString(),
		LastAccessJTI:     uuid.NewString(),
		DeviceDisplayName: "Chrome on macOS",
		ClientIP:          "10.0.0.1",
		CreatedAt:         now,
		ExpiresAt:         now.Add(24 * time.Hour),
	}
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	sess := makeSession(id.UserID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, sess))
	s.ErrorIs(s.store.Create(ctx, sess), sentinel.ErrConflict)

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(sess.RefreshJTI, found.RefreshJTI)
	s.Equal(sess.DeviceDisplayName, found.DeviceDisplayName)

	ttl, err := s.redis.Client.TTL(ctx, "session:"+sess.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 23*time.Hour)
}

// TestConcurrentRevocation verifies that WATCH lets exactly one of many
// concurrent revocations win.
func (s *RedisStoreSuite) TestConcurrentRevocation() {
	ctx := context.Background()
	sess := makeSession(id.UserID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, sess))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, rejectedCount, otherErrors atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, sess.ID,
				func(m *models.Session) error { return m.CanRevoke() },
				func(m *models.Session) { m.ApplyRevocation(time.Now()) },
			)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, redis.TxFailedErr), dErrors.HasCode(err, dErrors.CodeInvalidState):
				rejectedCount.Add(1)
			default:
				otherErrors.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one revoke should succeed")
	s.Equal(int32(goroutines-1), rejectedCount.Load())
	s.Equal(int32(0), otherErrors.Load())

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(models.SessionStatusRevoked, found.Status)
}

func (s *RedisStoreSuite) TestListByUserDropsExpiredMembers() {
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	live := makeSession(userID)
	gone := makeSession(userID)
	s.Require().NoError(s.store.Create(ctx, live))
	s.Require().NoError(s.store.Create(ctx, gone))
	s.Require().NoError(s.redis.Client.Del(ctx, "session:"+gone.ID.String()).Err())

	list, err := s.store.ListByUser(ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(live.ID, list[0].ID)

	members, err := s.redis.Client.SMembers(ctx, "user_sessions:"+userID.String()).Result()
	s.Require().NoError(err)
	s.Equal([]string{live.ID.String()}, members)
}
