//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"meldid/internal/registry"
	"meldid/internal/registry/store"
	"meldid/pkg/platform/sentinel"
	"meldid/pkg/testutil/containers"
)

type RedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.Redis
}

func TestRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func redisEntry(chipID string, at time.Time) registry.Entry {
	key := make(registry.PublicKeyBytes, 32)
	copy(key, chipID)
	return registry.Entry{
		ChipID:       chipID,
		PublicKey:    key,
		DeviceID:     "device-" + chipID,
		DID:          "did:key:z" + chipID,
		KeySource:    "pin-derived",
		RegisteredAt: at,
		LastSeen:     at,
	}
}

func (s *RedisSuite) TestCreateGetRoundTrip() {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := redisEntry("chip-a", at)

	s.Require().NoError(s.store.Create(ctx, want))
	got, err := s.store.Get(ctx, "chip-a")
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *RedisSuite) TestCreateConflictKeepsFirstDocument() {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := redisEntry("chip-a", at)
	s.Require().NoError(s.store.Create(ctx, first))

	second := redisEntry("chip-a", at.Add(time.Hour))
	second.DeviceID = "other-device"
	s.Require().ErrorIs(s.store.Create(ctx, second), sentinel.ErrConflict)

	got, err := s.store.Get(ctx, "chip-a")
	s.Require().NoError(err)
	s.Equal("device-chip-a", got.DeviceID)
	s.Equal(at, got.LastSeen)
}

func (s *RedisSuite) TestGetMiss() {
	_, err := s.store.Get(context.Background(), "nope")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisSuite) TestTouchIsMonotonic() {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Create(ctx, redisEntry("chip-a", t0)))

	s.Require().NoError(s.store.Touch(ctx, "chip-a", t0.Add(time.Hour)))
	s.Require().NoError(s.store.Touch(ctx, "chip-a", t0.Add(-time.Hour)))

	got, err := s.store.Get(ctx, "chip-a")
	s.Require().NoError(err)
	s.Equal(t0.Add(time.Hour), got.LastSeen)
}

func (s *RedisSuite) TestTouchMiss() {
	err := s.store.Touch(context.Background(), "nope", time.Now())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisSuite) TestBatchGetSkipsUnknown() {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Create(ctx, redisEntry("chip-a", at)))
	s.Require().NoError(s.store.Create(ctx, redisEntry("chip-b", at)))

	got, err := s.store.BatchGet(ctx, []string{"chip-a", "missing", "chip-b"})
	s.Require().NoError(err)
	s.Len(got, 2)
}

func (s *RedisSuite) TestBatchGetMergesTouchedLastSeen() {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	s.Require().NoError(s.store.Create(ctx, redisEntry("chip-a", t0)))
	s.Require().NoError(s.store.Touch(ctx, "chip-a", t1))

	got, err := s.store.BatchGet(ctx, []string{"chip-a"})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(t1, got[0].LastSeen)
}

func (s *RedisSuite) TestList() {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Create(ctx, redisEntry("chip-a", at)))
	s.Require().NoError(s.store.Create(ctx, redisEntry("chip-b", at)))

	got, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(got, 2)
}

func (s *RedisSuite) TestHealth() {
	s.NoError(s.store.Health(context.Background()))
}
