package registry

import (
	"context"
	"time"
)

// Store is the injected persistence abstraction behind the registry. The
// service is storage-agnostic: an in-memory map serves tests and single-node
// installations, redis and postgres serve shared deployments.
//
// Contract, enforced by every implementation:
//   - Create is atomic per chipID and returns sentinel.ErrConflict when the
//     chipID already exists. Stored key material is immutable afterwards.
//   - Get returns sentinel.ErrNotFound for unknown chipIDs.
//   - Touch only advances lastSeen; it never mutates key material.
//   - BatchGet skips unknown chipIDs silently and guarantees no order.
type Store interface {
	Create(ctx context.Context, entry Entry) error
	Get(ctx context.Context, chipID string) (Entry, error)
	Touch(ctx context.Context, chipID string, seenAt time.Time) error
	BatchGet(ctx context.Context, chipIDs []string) ([]Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Health(ctx context.Context) error
}
