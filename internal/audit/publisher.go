package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink receives finalized events. Implementations must tolerate concurrent
// publishers.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Publisher stamps events and forwards them to the configured sink. Emit is
// fire-and-forget from the caller's perspective; sink failures are logged and
// swallowed so audit plumbing can never break registrations.
type Publisher struct {
	sink Sink
	log  *slog.Logger
}

func NewPublisher(sink Sink, log *slog.Logger) *Publisher {
	return &Publisher{sink: sink, log: log}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.sink.Publish(ctx, event); err != nil {
		p.log.WarnContext(ctx, "audit publish failed",
			"event_type", string(event.Type),
			"chip_id", event.ChipID,
			"error", err,
		)
	}
}

func (p *Publisher) Close() error {
	return p.sink.Close()
}
