//go:build integration

package resync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"connection/internal/connection/resync"
	platformredis "connection/internal/platform/redis"
	"connection/pkg/testutil/containers"
)

type RedisGuardSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisGuardSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisGuardSuite))
}

func (s *RedisGuardSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisGuardSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisGuardSuite) TestSingleHolder() {
	ctx := context.Background()
	client, err := platformredis.New(ctx, s.redis.Config())
	s.Require().NoError(err)
	defer func() { _ = client.Close() }()
	s.Require().NoError(client.Health(ctx))

	guard, err := resync.NewRedisGuard(client.Client, "", time.Minute)
	s.Require().NoError(err)

	release, ok, err := guard.Acquire(ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, ok, err = guard.Acquire(ctx)
	s.Require().NoError(err)
	s.False(ok, "second acquire must fail while held")

	s.Require().NoError(release(ctx))

	release, ok, err = guard.Acquire(ctx)
	s.Require().NoError(err)
	s.True(ok)
	s.NoError(release(ctx))
}

func (s *RedisGuardSuite) TestStaleReleaseKeepsNewerLock() {
	ctx := context.Background()
	guard, err := resync.NewRedisGuard(s.redis.Client, "connection:resync:test", time.Minute)
	s.Require().NoError(err)

	staleRelease, ok, err := guard.Acquire(ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	// simulate expiry and a new holder
	s.Require().NoError(s.redis.Client.Del(ctx, "connection:resync:test").Err())
	_, ok, err = guard.Acquire(ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(staleRelease(ctx))

	exists, err := s.redis.Client.Exists(ctx, "connection:resync:test").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)
}

func (s *RedisGuardSuite) TestHeldLockOutlivesTTL() {
	ctx := context.Background()
	const key = "connection:resync:long-run"
	guard, err := resync.NewRedisGuard(s.redis.Client, key, 600*time.Millisecond)
	s.Require().NoError(err)

	release, ok, err := guard.Acquire(ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	// a run lasting several TTLs must still exclude a second run
	time.Sleep(2 * time.Second)
	_, ok, err = guard.Acquire(ctx)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(release(ctx))
	exists, err := s.redis.Client.Exists(ctx, key).Result()
	s.Require().NoError(err)
	s.Zero(exists)

	// once released the lock is not extended again
	time.Sleep(300 * time.Millisecond)
	exists, err = s.redis.Client.Exists(ctx, key).Result()
	s.Require().NoError(err)
	s.Zero(exists)
}
