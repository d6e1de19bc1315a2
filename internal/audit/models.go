// Package audit captures append-only operational events for registry
// activity. Events are best-effort: a failing sink never fails the request
// that produced the event.
package audit

import "time"

// EventType enumerates the registry activities worth a trail.
type EventType string

const (
	EventRegistered EventType = "identity.registered"
	EventRefreshed  EventType = "identity.refreshed"
	EventLookup     EventType = "identity.lookup"
	EventSyncServed EventType = "identity.sync"
)

// Event is one audit record. Platform and ClientIP come from request
// metadata when available; both may be empty for internal callers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ChipID    string    `json:"chipID,omitempty"`
	DeviceID  string    `json:"deviceID,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	ClientIP  string    `json:"clientIP,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
