package eventbus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/metrics"
)

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	lg, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	b, err := New(t.TempDir(), lg, metrics.Noop{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPublishDeliversSyncInRegistrationOrder(t *testing.T) {
	b := newTestBus(t)

	var got []string
	b.Subscribe([]models.ChannelType{models.ChannelSignal}, func(e *models.Event) {
		got = append(got, "first:"+e.ID)
	})
	b.Subscribe([]models.ChannelType{models.ChannelSignal}, func(e *models.Event) {
		got = append(got, "second:"+e.ID)
	})

	ev, err := b.Publish(models.ChannelSignal, map[string]interface{}{"symbol": "BTCUSDT"}, "test")
	require.NoError(t, err)
	require.True(t, ev.IsValid())

	require.Len(t, got, 2)
	assert.Equal(t, "first:"+ev.ID, got[0])
	assert.Equal(t, "second:"+ev.ID, got[1])
}

func TestPublishDoesNotCrossChannels(t *testing.T) {
	b := newTestBus(t)

	delivered := 0
	b.Subscribe([]models.ChannelType{models.ChannelDecision}, func(*models.Event) { delivered++ })

	_, err := b.Publish(models.ChannelSignal, "payload", "test")
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	b := newTestBus(t)

	b.Subscribe([]models.ChannelType{models.ChannelSignal}, func(*models.Event) {
		panic("boom")
	})
	survived := false
	b.Subscribe([]models.ChannelType{models.ChannelSignal}, func(*models.Event) {
		survived = true
	})

	_, err := b.Publish(models.ChannelSignal, "payload", "test")
	require.NoError(t, err)
	assert.True(t, survived)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)

	count := 0
	sub := b.Subscribe([]models.ChannelType{models.ChannelSignal}, func(*models.Event) { count++ })

	_, err := b.Publish(models.ChannelSignal, "one", "test")
	require.NoError(t, err)
	b.Unsubscribe(sub)
	_, err = b.Publish(models.ChannelSignal, "two", "test")
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.False(t, sub.Active())
}

func TestAsyncDelivery(t *testing.T) {
	b := newTestBus(t)

	got := make(chan *models.Event, 1)
	b.SubscribeAsync([]models.ChannelType{models.ChannelDecision}, func(e *models.Event) {
		got <- e
	})

	ev, err := b.PublishAsync(models.ChannelDecision, map[string]interface{}{"action": "BUY"}, "test")
	require.NoError(t, err)

	select {
	case e := <-got:
		assert.Equal(t, ev.ID, e.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("async delivery did not arrive")
	}
}

func TestReplayReturnsPersistedEvents(t *testing.T) {
	b := newTestBus(t)

	first, err := b.Publish(models.ChannelSignal, map[string]interface{}{"n": 1}, "test")
	require.NoError(t, err)
	second, err := b.Publish(models.ChannelSignal, map[string]interface{}{"n": 2}, "test")
	require.NoError(t, err)

	events, err := b.Replay(models.ChannelSignal, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)
	assert.True(t, events[0].IsValid())
}

func TestReplayWindowAndLimit(t *testing.T) {
	b := newTestBus(t)

	for i := 0; i < 3; i++ {
		_, err := b.Publish(models.ChannelSignal, map[string]interface{}{"n": i}, "test")
		require.NoError(t, err)
	}

	events, err := b.Replay(models.ChannelSignal, time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = b.Replay(models.ChannelSignal, time.Now().Add(time.Hour), time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = b.Replay(models.ChannelSignal, time.Time{}, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReplaySkipsCorruptAndTamperedLines(t *testing.T) {
	b := newTestBus(t)

	good, err := b.Publish(models.ChannelSignal, map[string]interface{}{"n": 1}, "test")
	require.NoError(t, err)

	tampered, err := models.NewEvent(models.ChannelSignal, map[string]interface{}{"n": 2}, "test")
	require.NoError(t, err)
	tampered.Payload = map[string]interface{}{"n": 99.0}
	line, err := json.Marshal(tampered)
	require.NoError(t, err)

	path := b.logPath(models.ChannelSignal)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n" + string(line) + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := b.Replay(models.ChannelSignal, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, good.ID, events[0].ID)
}

func TestReplayMissingLogIsEmpty(t *testing.T) {
	b := newTestBus(t)

	events, err := b.Replay(models.ChannelOutcome, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Nil(t, events)
	assert.NoFileExists(t, filepath.Join(b.dir, "outcomes.jsonl"))
}

func TestRecentIsBoundedByBuffer(t *testing.T) {
	b := newTestBus(t, WithBufferSize(3))

	var ids []string
	for i := 0; i < 5; i++ {
		ev, err := b.Publish(models.ChannelSignal, map[string]interface{}{"n": i}, "test")
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}

	recent := b.Recent(models.ChannelSignal, 10)
	require.Len(t, recent, 3)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[4], recent[2].ID)

	assert.Len(t, b.Recent(models.ChannelSignal, 2), 2)
	assert.Nil(t, b.Recent(models.ChannelLog, 5))
}

func TestStatsCounters(t *testing.T) {
	b := newTestBus(t)

	b.Subscribe([]models.ChannelType{models.ChannelSignal}, func(*models.Event) {})
	_, err := b.Publish(models.ChannelSignal, "one", "test")
	require.NoError(t, err)
	_, err = b.Publish(models.ChannelSignal, "two", "test")
	require.NoError(t, err)

	st := b.Stats()
	assert.Equal(t, uint64(2), st.Published)
	assert.Equal(t, uint64(2), st.Delivered)
	cs := st.Channels[string(models.ChannelSignal)]
	assert.Equal(t, 1, cs.Subscribers)
	assert.Equal(t, 2, cs.Buffered)
}

func TestPublishAfterClose(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Close())

	_, err := b.Publish(models.ChannelSignal, "payload", "test")
	assert.ErrorIs(t, err, ErrClosed)

	// idempotent
	assert.NoError(t, b.Close())
}

func TestCloseDrainsAsyncQueue(t *testing.T) {
	b := newTestBus(t, WithAsyncQueueSize(16))

	got := make(chan struct{}, 16)
	b.SubscribeAsync([]models.ChannelType{models.ChannelSignal}, func(*models.Event) {
		got <- struct{}{}
	})

	const n = 8
	for i := 0; i < n; i++ {
		_, err := b.PublishAsync(models.ChannelSignal, map[string]interface{}{"n": i}, "test")
		require.NoError(t, err)
	}
	require.NoError(t, b.Close())

	assert.Len(t, got, n)
}
