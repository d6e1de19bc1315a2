// Package verifier implements the offline verifier cache: a partial mirror
// of the registry refreshed by delta sync, used to check tap signatures with
// zero network access. Verification never falls back to the network — a chip
// absent from the cache is unknown, full stop.
package verifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"meldid/internal/identity"
	"meldid/internal/registry"
	"meldid/pkg/domainerrors"
	"meldid/pkg/platform/sentinel"
)

// SyncResult is one delta-sync response from the registry.
type SyncResult struct {
	Entries       []registry.Entry
	Total         int
	SyncTimestamp int64
}

// RegistryClient fetches deltas from the registry. Implemented over HTTP by
// the registryclient package and by a mock in tests.
type RegistryClient interface {
	BatchLookup(ctx context.Context, chipIDs []string, lastSync int64) (SyncResult, error)
}

// Cache is the verifier-local snapshot. All methods are safe for concurrent
// use; Sync may run on a timer while taps are being verified.
type Cache struct {
	client     RegistryClient
	log        *slog.Logger
	maxRetries uint64

	mu       sync.RWMutex
	entries  map[string]registry.Entry
	tracked  map[string]struct{}
	lastSync int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxRetries overrides how many times one Sync call retries before
// giving up. Defaults to 3.
func WithMaxRetries(n uint64) Option {
	return func(c *Cache) { c.maxRetries = n }
}

func NewCache(client RegistryClient, log *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		client:     client,
		log:        log,
		maxRetries: 3,
		entries:    make(map[string]registry.Entry),
		tracked:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Track adds chip identifiers to the mirror set. A node tracks only the
// pendants of its own installation, which is what keeps deltas small.
func (c *Cache) Track(chipIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range chipIDs {
		if id != "" {
			c.tracked[id] = struct{}{}
		}
	}
}

// Tracked returns the mirror set, unordered.
func (c *Cache) Tracked() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tracked))
	for id := range c.tracked {
		out = append(out, id)
	}
	return out
}

// Sync pulls entries whose lastSeen advanced past the local watermark and
// merges them in. Transient failures are retried with exponential backoff;
// when retries are exhausted the cache is left exactly as it was and the
// caller gets a sync_timeout. An abandoned sync never corrupts the snapshot:
// merging happens only after a fully decoded response.
func (c *Cache) Sync(ctx context.Context) error {
	ids := c.Tracked()
	if len(ids) == 0 {
		return nil
	}
	watermark := c.LastSync()

	var res SyncResult
	operation := func() error {
		var err error
		res, err = c.client.BatchLookup(ctx, ids, watermark)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return domainerrors.Wrap(domainerrors.CodeSyncTimeout, "registry unreachable", err)
		}
		return domainerrors.Wrap(domainerrors.CodeInternal, "delta sync failed", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range res.Entries {
		c.entries[entry.ChipID] = entry
	}
	if res.SyncTimestamp > c.lastSync {
		c.lastSync = res.SyncTimestamp
	}
	c.log.InfoContext(ctx, "verifier cache synced",
		"updated", len(res.Entries),
		"cached", len(c.entries),
		"last_sync", c.lastSync,
	)
	return nil
}

// LastSync returns the high-water mark in Unix milliseconds.
func (c *Cache) LastSync() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// Lookup returns the cached entry for a chip, if mirrored.
func (c *Cache) Lookup(chipID string) (registry.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[chipID]
	return entry, ok
}

// Len reports how many entries the snapshot holds.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Verify checks a signature over message against the cached key for chipID.
// A cache miss fails closed with unknown_identity; a cryptographic mismatch
// is just false, indistinguishable from any other bad signature.
func (c *Cache) Verify(chipID string, message, sig []byte) (bool, error) {
	entry, ok := c.Lookup(chipID)
	if !ok {
		return false, domainerrors.New(domainerrors.CodeUnknownIdentity, "chip is not in the verifier cache")
	}
	return identity.Verify(message, sig, []byte(entry.PublicKey)), nil
}

// VerifyTap verifies a tap: it rebuilds the canonical challenge for chipID
// itself, so callers cannot drift from the issuer's message format.
func (c *Cache) VerifyTap(chipID string, sig []byte) (bool, error) {
	return c.Verify(chipID, identity.BuildChallenge(chipID), sig)
}
