package verifier_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"meldid/internal/identity"
	"meldid/internal/registry"
	"meldid/internal/verifier"
	"meldid/internal/verifier/mocks"
	"meldid/pkg/domainerrors"
	"meldid/pkg/platform/sentinel"
)

type CacheSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	client *mocks.MockRegistryClient
	cache  *verifier.Cache
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockRegistryClient(s.ctrl)
	s.cache = verifier.NewCache(s.client, slog.New(slog.DiscardHandler), verifier.WithMaxRetries(0))
}

func (s *CacheSuite) entry(chipID string, pub []byte, seenAt time.Time) registry.Entry {
	return registry.Entry{
		ChipID:    chipID,
		PublicKey: registry.PublicKeyBytes(pub),
		DeviceID:  "device-" + chipID,
		LastSeen:  seenAt,
	}
}

func (s *CacheSuite) TestSyncMergesDelta() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	kp, err := identity.DeriveKeypair("chip-a", "1234")
	s.Require().NoError(err)

	s.cache.Track("chip-a", "chip-b")
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.InAnyOrder([]string{"chip-a", "chip-b"}), int64(0)).
		Return(verifier.SyncResult{
			Entries:       []registry.Entry{s.entry("chip-a", kp.Public, now)},
			Total:         1,
			SyncTimestamp: now.UnixMilli(),
		}, nil)

	s.Require().NoError(s.cache.Sync(context.Background()))
	s.Equal(1, s.cache.Len())
	s.Equal(now.UnixMilli(), s.cache.LastSync())

	got, ok := s.cache.Lookup("chip-a")
	s.Require().True(ok)
	s.Equal([]byte(kp.Public), []byte(got.PublicKey))
}

func (s *CacheSuite) TestSyncSendsWatermark() {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.cache.Track("chip-a")

	first := s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), int64(0)).
		Return(verifier.SyncResult{SyncTimestamp: t0.UnixMilli()}, nil)
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), t0.UnixMilli()).
		Return(verifier.SyncResult{SyncTimestamp: t0.Add(time.Minute).UnixMilli()}, nil).
		After(first)

	s.Require().NoError(s.cache.Sync(context.Background()))
	s.Require().NoError(s.cache.Sync(context.Background()))
	s.Equal(t0.Add(time.Minute).UnixMilli(), s.cache.LastSync())
}

func (s *CacheSuite) TestSyncWatermarkNeverRegresses() {
	s.cache.Track("chip-a")
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(verifier.SyncResult{SyncTimestamp: 1000}, nil)
	s.Require().NoError(s.cache.Sync(context.Background()))

	// A registry answering with a stale clock must not pull the watermark
	// backwards, or the next delta would replay old entries forever.
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), int64(1000)).
		Return(verifier.SyncResult{SyncTimestamp: 400}, nil)
	s.Require().NoError(s.cache.Sync(context.Background()))
	s.Equal(int64(1000), s.cache.LastSync())
}

func (s *CacheSuite) TestSyncWithoutTrackedChipsIsNoop() {
	s.Require().NoError(s.cache.Sync(context.Background()))
	s.Equal(0, s.cache.Len())
}

func (s *CacheSuite) TestSyncFailureLeavesCacheUntouched() {
	s.cache.Track("chip-a")
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(verifier.SyncResult{}, sentinel.ErrUnavailable)

	err := s.cache.Sync(context.Background())
	s.Require().Error(err)
	s.Equal(domainerrors.CodeSyncTimeout, domainerrors.CodeOf(err))
	s.Equal(0, s.cache.Len())
	s.Equal(int64(0), s.cache.LastSync())
}

func (s *CacheSuite) TestSyncRetriesTransientFailures() {
	cache := verifier.NewCache(s.client, slog.New(slog.DiscardHandler), verifier.WithMaxRetries(1))
	cache.Track("chip-a")

	failed := s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(verifier.SyncResult{}, sentinel.ErrUnavailable)
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(verifier.SyncResult{SyncTimestamp: 99}, nil).
		After(failed)

	s.Require().NoError(cache.Sync(context.Background()))
	s.Equal(int64(99), cache.LastSync())
}

func (s *CacheSuite) TestSyncNonTransientFailure() {
	s.cache.Track("chip-a")
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(verifier.SyncResult{}, errors.New("malformed response"))

	err := s.cache.Sync(context.Background())
	s.Require().Error(err)
	s.Equal(domainerrors.CodeInternal, domainerrors.CodeOf(err))
}

func (s *CacheSuite) TestVerifyFailsClosedOnCacheMiss() {
	ok, err := s.cache.Verify("never-synced", []byte("msg"), []byte("sig"))
	s.False(ok)
	s.Require().Error(err)
	s.Equal(domainerrors.CodeUnknownIdentity, domainerrors.CodeOf(err))
}

func (s *CacheSuite) TestVerifyTap() {
	now := time.Now()
	kp, err := identity.DeriveKeypair("chip-a", "1234")
	s.Require().NoError(err)

	s.cache.Track("chip-a")
	s.client.EXPECT().
		BatchLookup(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(verifier.SyncResult{
			Entries:       []registry.Entry{s.entry("chip-a", kp.Public, now)},
			SyncTimestamp: now.UnixMilli(),
		}, nil)
	s.Require().NoError(s.cache.Sync(context.Background()))

	sig := identity.Sign(identity.BuildChallenge("chip-a"), kp.Private)

	ok, err := s.cache.VerifyTap("chip-a", sig)
	s.Require().NoError(err)
	s.True(ok)

	// Signature from a different chip's challenge does not transfer.
	ok, err = s.cache.VerifyTap("chip-a", identity.Sign(identity.BuildChallenge("chip-b"), kp.Private))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *CacheSuite) TestTrackedIgnoresEmptyIDs() {
	s.cache.Track("chip-a", "", "chip-a")
	s.Equal([]string{"chip-a"}, s.cache.Tracked())
}
