package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matchmaking/internal/logger"
)

func TestNewPublisher_EmptyURLIsNoop(t *testing.T) {
	p := NewPublisher("", "matchmaking.events", logger.Nop())
	assert.Equal(t, "noop", PublisherMode(p))
	assert.NoError(t, p.Publish(context.Background(), "x", map[string]string{"a": "b"}))
	assert.NoError(t, p.Close())
}

func TestPublisherNotifier_PublishesMatchFormed(t *testing.T) {
	rec := &Recorder{}
	n := NewPublisherNotifier(rec, logger.Nop())

	n.MatchFormed(context.Background(), MatchFormed{
		MatchID:        "m1",
		ConversationID: "c1",
		UserLowID:      1,
		UserHighID:     2,
		Score:          75,
		FormedAt:       time.Now().UTC(),
	})

	got := rec.ByKey(RoutingKeyMatchFormed)
	require.Len(t, got, 1)

	var ev MatchFormed
	require.NoError(t, json.Unmarshal(got[0].Body, &ev))
	assert.Equal(t, "m1", ev.MatchID)
	assert.Equal(t, uint64(2), ev.UserHighID)
	assert.Equal(t, "memory", PublisherMode(rec))
}
