package events

import (
	"context"
	"log/slog"
	"time"
)

const RoutingKeyMatchFormed = "match.formed"

// MatchFormed tells both members that a match and its conversation exist.
type MatchFormed struct {
	MatchID         string    `json:"match_id"`
	ConversationID  string    `json:"conversation_id"`
	UserLowID       uint64    `json:"user_low_id"`
	UserHighID      uint64    `json:"user_high_id"`
	Score           float64   `json:"score"`
	SourceRequestID string    `json:"source_request_id,omitempty"`
	FormedAt        time.Time `json:"formed_at"`
}

// Notifier hands formation events to whatever delivers notifications.
// Failures are the notifier's problem, never the caller's.
type Notifier interface {
	MatchFormed(ctx context.Context, ev MatchFormed)
}

// PublisherNotifier publishes notifications on the event exchange.
type PublisherNotifier struct {
	pub Publisher
	log *slog.Logger
}

func NewPublisherNotifier(pub Publisher, log *slog.Logger) *PublisherNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &PublisherNotifier{pub: pub, log: log}
}

func (n *PublisherNotifier) MatchFormed(ctx context.Context, ev MatchFormed) {
	if err := n.pub.Publish(ctx, RoutingKeyMatchFormed, ev); err != nil {
		n.log.Warn("match.formed publish failed", "match_id", ev.MatchID, "err", err)
	}
}
