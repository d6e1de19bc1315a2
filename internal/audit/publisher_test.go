package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ closed bool }

func (s *failingSink) Publish(context.Context, Event) error { return errors.New("broker down") }
func (s *failingSink) Close() error                         { s.closed = true; return nil }

func TestEmitStampsEvents(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, slog.New(slog.DiscardHandler))

	pub.Emit(context.Background(), Event{Type: EventRegistered, ChipID: "AA:BB:CC"})

	events := sink.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, EventRegistered, events[0].Type)
}

func TestEmitKeepsCallerStamps(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, slog.New(slog.DiscardHandler))

	pub.Emit(context.Background(), Event{ID: "fixed-id", Type: EventLookup})

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "fixed-id", events[0].ID)
}

func TestEmitSwallowsSinkFailure(t *testing.T) {
	pub := NewPublisher(&failingSink{}, slog.New(slog.DiscardHandler))

	// Must not panic or propagate; audit is best-effort.
	pub.Emit(context.Background(), Event{Type: EventSyncServed})
}

func TestCloseForwardsToSink(t *testing.T) {
	sink := &failingSink{}
	pub := NewPublisher(sink, slog.New(slog.DiscardHandler))
	require.NoError(t, pub.Close())
	assert.True(t, sink.closed)
}
