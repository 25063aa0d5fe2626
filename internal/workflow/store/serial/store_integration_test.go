//go:build integration

package serial_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"findiff/internal/workflow/store/claimlock"
	"findiff/internal/workflow/store/serial"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/testutil/containers"
)

type SequenceSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
}

func TestSequenceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SequenceSuite))
}

func (s *SequenceSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *SequenceSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "serial_sequences"))
	s.Require().NoError(s.redis.FlushAll(ctx))
}

func (s *SequenceSuite) TestPostgresSequence() {
	ctx := context.Background()
	seq := serial.NewPostgres(s.postgres.DB)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for want := int64(1); want <= 3; want++ {
		n, err := seq.Next(ctx, "AUDIT", day)
		s.Require().NoError(err)
		s.Equal(want, n)
	}
	n, err := seq.Next(ctx, "AUDIT", day.AddDate(0, 0, 1))
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *SequenceSuite) TestRedisSequenceSetsExpiry() {
	ctx := context.Background()
	seq := serial.NewRedis(s.redis.Client)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	n, err := seq.Next(ctx, "QA", day)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	n, err = seq.Next(ctx, "QA", day)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	ttl, err := s.redis.Client.TTL(ctx, "serial:QA:20260314").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 24*time.Hour)
}

func (s *SequenceSuite) TestRedisClaimLock() {
	ctx := context.Background()
	lock := claimlock.NewRedis(s.redis.Client)
	token, err := lock.Acquire(ctx, "apply:alice", time.Second)
	s.Require().NoError(err)
	_, err = lock.Acquire(ctx, "apply:alice", time.Second)
	s.ErrorIs(err, sentinel.ErrLocked)

	s.Require().NoError(lock.Release(ctx, "apply:alice", "stale"))
	_, err = lock.Acquire(ctx, "apply:alice", time.Second)
	s.ErrorIs(err, sentinel.ErrLocked)

	s.Require().NoError(lock.Release(ctx, "apply:alice", token))
	_, err = lock.Acquire(ctx, "apply:alice", time.Second)
	s.NoError(err)
}
