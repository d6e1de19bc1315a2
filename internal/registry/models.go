// Package registry implements the public key registry: registration with
// first-write-wins key material, point lookup, and the timestamp-delta batch
// sync that keeps offline verifiers eventually consistent.
package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"meldid/internal/identity"
)

// Entry is the authoritative record for one chip identifier.
type Entry struct {
	ChipID       string             `json:"chipID"`
	PublicKey    PublicKeyBytes     `json:"publicKey"`
	DeviceID     string             `json:"deviceID"`
	DID          string             `json:"did"`
	KeySource    identity.KeySource `json:"keySource,omitempty"`
	RegisteredAt time.Time          `json:"-"`
	LastSeen     time.Time          `json:"-"`
}

// entryWire adds the millisecond timestamps the HTTP surface exposes.
type entryWire struct {
	ChipID       string             `json:"chipID"`
	PublicKey    PublicKeyBytes     `json:"publicKey"`
	DeviceID     string             `json:"deviceID"`
	DID          string             `json:"did"`
	KeySource    identity.KeySource `json:"keySource,omitempty"`
	RegisteredAt int64              `json:"registeredAt"`
	LastSeen     int64              `json:"lastSeen"`
}

// MarshalJSON renders timestamps as Unix milliseconds, matching the wire
// contract and the millisecond clock the reader firmware runs on.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryWire{
		ChipID:       e.ChipID,
		PublicKey:    e.PublicKey,
		DeviceID:     e.DeviceID,
		DID:          e.DID,
		KeySource:    e.KeySource,
		RegisteredAt: e.RegisteredAt.UnixMilli(),
		LastSeen:     e.LastSeen.UnixMilli(),
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Entry{
		ChipID:       w.ChipID,
		PublicKey:    w.PublicKey,
		DeviceID:     w.DeviceID,
		DID:          w.DID,
		KeySource:    w.KeySource,
		RegisteredAt: time.UnixMilli(w.RegisteredAt).UTC(),
		LastSeen:     time.UnixMilli(w.LastSeen).UTC(),
	}
	return nil
}

// PublicKeyBytes marshals as a JSON array of byte values rather than base64.
// The pendant-side callers submit keys as plain number arrays, and the
// verifier firmware parses them the same way, so the representation is fixed.
type PublicKeyBytes []byte

func (b PublicKeyBytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	vals := make([]uint16, len(b))
	for i, v := range b {
		vals[i] = uint16(v)
	}
	return json.Marshal(vals)
}

func (b *PublicKeyBytes) UnmarshalJSON(data []byte) error {
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return fmt.Errorf("publicKey[%d] = %d is out of byte range", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// ListEntry is the administrative projection of an Entry: a truncated key
// fingerprint instead of the full key material.
type ListEntry struct {
	ChipID         string `json:"chipID"`
	KeyFingerprint string `json:"keyFingerprint"`
	DeviceID       string `json:"deviceID"`
	DID            string `json:"did"`
	RegisteredAt   int64  `json:"registeredAt"`
	LastSeen       int64  `json:"lastSeen"`
}

// RegisterInput carries a validated registration request into the service.
type RegisterInput struct {
	ChipID    string
	PublicKey []byte
	DeviceID  string
	DID       string // optional; the one-true DID is derived from the key when empty
	KeySource identity.KeySource
}

// RegisterResult reports the DID now associated with the chip. When the chip
// was already registered this is the stored identity's DID, not one derived
// from the submitted key.
type RegisterResult struct {
	DID              string
	AlreadyRegistered bool
}

// BatchResult is the delta-sync payload: entries whose lastSeen advanced past
// the caller's watermark, plus the registry clock for the next watermark.
type BatchResult struct {
	Entries       []Entry
	Total         int
	SyncTimestamp int64
}
