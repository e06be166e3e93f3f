package publisher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltpulse/moltpulse/internal/publisher"
	"github.com/moltpulse/moltpulse/internal/pulse"
)

var (
	_ pulse.Publisher = (*publisher.Noop)(nil)
	_ pulse.Publisher = (*publisher.Memory)(nil)
	_ pulse.Publisher = (*publisher.PubSub)(nil)
)

func TestMemoryPublishRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := publisher.NewMemory()
	id, err := pub.Publish(context.Background(), "moltpulse-runs", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = pub.Publish(context.Background(), "moltpulse-runs", map[string]string{"run_id": "r2"})
	require.NoError(t, err)

	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, "moltpulse-runs", events[0].Topic)
	require.JSONEq(t, `{"run_id":"r1"}`, string(events[0].Payload))
	require.JSONEq(t, `{"run_id":"r2"}`, string(events[1].Payload))
}

func TestMemoryPublishRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := publisher.NewMemory()
	_, err := pub.Publish(context.Background(), "moltpulse-runs", func() {})
	require.Error(t, err)
	require.Empty(t, pub.Events())
}

func TestNoopPublish(t *testing.T) {
	t.Parallel()

	pub := publisher.NewNoop()
	id, err := pub.Publish(context.Background(), "anything", map[string]int{"n": 1})
	require.NoError(t, err)
	require.Empty(t, id)
}
