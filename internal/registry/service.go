package registry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"meldid/internal/audit"
	"meldid/internal/identity"
	"meldid/internal/platform/metrics"
	"meldid/pkg/domainerrors"
	"meldid/pkg/platform/sentinel"
	"meldid/pkg/requestcontext"
)

// Service owns the registry semantics. It is storage-agnostic: all
// persistence goes through the injected Store, and all crypto goes through
// the pure identity package, so the rules here (first-write-wins key
// material, lastSeen liveness, strict delta filtering) are testable against
// the in-memory store.
type Service struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Publisher
	tracer  trace.Tracer
}

func NewService(store Store, log *slog.Logger, m *metrics.Metrics, auditor *audit.Publisher) *Service {
	return &Service{
		store:   store,
		log:     log,
		metrics: m,
		audit:   auditor,
		tracer:  otel.Tracer("meldid/registry"),
	}
}

// Register records a chip's public key, idempotently. The first registration
// for a chipID wins permanently on key material: repeated calls, even with a
// different key, only refresh lastSeen and return the stored identity's DID.
// That rule is what stops a later forged registration from hijacking a
// pendant identity.
func (s *Service) Register(ctx context.Context, input RegisterInput, platform string) (RegisterResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Register")
	defer span.End()

	if input.ChipID == "" || input.DeviceID == "" {
		s.metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
		return RegisterResult{}, domainerrors.New(domainerrors.CodeInvalidInput, "chipID and deviceID are required")
	}
	pub, err := validPublicKey(input.PublicKey)
	if err != nil {
		s.metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
		return RegisterResult{}, err
	}

	// The stored DID is always derived from the key material itself. A
	// client-submitted DID is accepted only as a cross-check.
	did, err := identity.EncodeDID(pub)
	if err != nil {
		return RegisterResult{}, err
	}
	if input.DID != "" {
		claimed, err := identity.DecodeDID(input.DID)
		if err != nil {
			s.metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
			return RegisterResult{}, err
		}
		if !bytes.Equal(claimed, pub) {
			s.metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
			return RegisterResult{}, domainerrors.New(domainerrors.CodeInvalidInput, "did does not match submitted public key")
		}
	}

	source := input.KeySource
	if source == "" {
		source = identity.SourceProvisioned
	}

	now := requestcontext.Now(ctx).UTC()
	entry := Entry{
		ChipID:       input.ChipID,
		PublicKey:    PublicKeyBytes(pub),
		DeviceID:     input.DeviceID,
		DID:          did,
		KeySource:    source,
		RegisteredAt: now,
		LastSeen:     now,
	}

	err = s.store.Create(ctx, entry)
	switch {
	case err == nil:
		s.metrics.RegistrationsTotal.WithLabelValues("created").Inc()
		s.audit.Emit(ctx, audit.Event{
			Type:     audit.EventRegistered,
			ChipID:   input.ChipID,
			DeviceID: input.DeviceID,
			Platform: platform,
			ClientIP: requestcontext.ClientIP(ctx),
		})
		s.log.InfoContext(ctx, "identity registered",
			"chip_id", input.ChipID,
			"device_id", input.DeviceID,
			"key_source", string(source),
			"request_id", requestcontext.RequestID(ctx),
		)
		return RegisterResult{DID: did}, nil

	case errors.Is(err, sentinel.ErrConflict):
		existing, getErr := s.store.Get(ctx, input.ChipID)
		if getErr != nil {
			return RegisterResult{}, domainerrors.Wrap(domainerrors.CodeInternal, "load existing registration", getErr)
		}
		if touchErr := s.store.Touch(ctx, input.ChipID, now); touchErr != nil {
			return RegisterResult{}, domainerrors.Wrap(domainerrors.CodeInternal, "refresh lastSeen", touchErr)
		}
		s.metrics.RegistrationsTotal.WithLabelValues("refreshed").Inc()
		s.audit.Emit(ctx, audit.Event{
			Type:     audit.EventRefreshed,
			ChipID:   input.ChipID,
			DeviceID: input.DeviceID,
			Platform: platform,
			ClientIP: requestcontext.ClientIP(ctx),
		})
		return RegisterResult{DID: existing.DID, AlreadyRegistered: true}, nil

	default:
		return RegisterResult{}, domainerrors.Wrap(domainerrors.CodeInternal, "store registration", err)
	}
}

// Lookup fetches one entry and refreshes its lastSeen as a liveness signal,
// which also makes the entry visible to verifiers syncing on a watermark.
func (s *Service) Lookup(ctx context.Context, chipID string) (Entry, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Lookup")
	defer span.End()

	if chipID == "" {
		return Entry{}, domainerrors.New(domainerrors.CodeInvalidInput, "chipID is required")
	}

	entry, err := s.store.Get(ctx, chipID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.metrics.LookupsTotal.WithLabelValues("miss").Inc()
		return Entry{}, domainerrors.New(domainerrors.CodeNotFound, "chip is not registered")
	}
	if err != nil {
		return Entry{}, domainerrors.Wrap(domainerrors.CodeInternal, "load registration", err)
	}

	now := requestcontext.Now(ctx).UTC()
	if err := s.store.Touch(ctx, chipID, now); err != nil {
		return Entry{}, domainerrors.Wrap(domainerrors.CodeInternal, "refresh lastSeen", err)
	}
	entry.LastSeen = now

	s.metrics.LookupsTotal.WithLabelValues("hit").Inc()
	s.audit.Emit(ctx, audit.Event{
		Type:     audit.EventLookup,
		ChipID:   chipID,
		DeviceID: entry.DeviceID,
		ClientIP: requestcontext.ClientIP(ctx),
	})
	return entry, nil
}

// BatchLookup serves delta sync. Only entries whose lastSeen is strictly
// newer than the caller's watermark are returned; lastSync == 0 means "no
// watermark" and returns every match. The response carries the registry
// clock so the caller's next watermark advances even on an empty delta.
// Entries arrive in no particular order.
func (s *Service) BatchLookup(ctx context.Context, chipIDs []string, lastSync int64) (BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.BatchLookup")
	defer span.End()

	found, err := s.store.BatchGet(ctx, chipIDs)
	if err != nil {
		return BatchResult{}, domainerrors.Wrap(domainerrors.CodeInternal, "batch load registrations", err)
	}

	updated := make([]Entry, 0, len(found))
	for _, entry := range found {
		if entry.LastSeen.UnixMilli() > lastSync {
			updated = append(updated, entry)
		}
	}

	s.metrics.BatchLookupsTotal.Inc()
	s.metrics.BatchEntriesReturned.Observe(float64(len(updated)))
	s.audit.Emit(ctx, audit.Event{
		Type:     audit.EventSyncServed,
		ClientIP: requestcontext.ClientIP(ctx),
	})

	return BatchResult{
		Entries:       updated,
		Total:         len(found),
		SyncTimestamp: requestcontext.Now(ctx).UTC().UnixMilli(),
	}, nil
}

// List enumerates registrations for operators. Full key material never
// leaves through this path; entries carry a short fingerprint only.
func (s *Service) List(ctx context.Context) ([]ListEntry, error) {
	ctx, span := s.tracer.Start(ctx, "registry.List")
	defer span.End()

	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeInternal, "list registrations", err)
	}

	out := make([]ListEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, ListEntry{
			ChipID:         entry.ChipID,
			KeyFingerprint: identity.Fingerprint(entry.PublicKey),
			DeviceID:       entry.DeviceID,
			DID:            entry.DID,
			RegisteredAt:   entry.RegisteredAt.UnixMilli(),
			LastSeen:       entry.LastSeen.UnixMilli(),
		})
	}
	return out, nil
}

// Health reports whether the backing store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

func validPublicKey(pub []byte) ([]byte, error) {
	if len(pub) != 32 {
		return nil, domainerrors.New(domainerrors.CodeInvalidPublicKey, "publicKey must be exactly 32 bytes")
	}
	return pub, nil
}
