package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/metrics"
)

// fakeCache covers just enough of cache.Service for dedupe.
type fakeCache struct {
	seen map[string]bool
	sets int
}

func newFakeCache() *fakeCache { return &fakeCache{seen: make(map[string]bool)} }

func (f *fakeCache) Set(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	f.seen[key] = true
	f.sets++
	return nil
}

func (f *fakeCache) Exists(_ context.Context, keys ...string) (bool, error) {
	for _, k := range keys {
		if !f.seen[k] {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeCache) Get(context.Context, string, interface{}) error  { return nil }
func (f *fakeCache) Delete(context.Context, ...string) error         { return nil }
func (f *fakeCache) DeleteByPattern(context.Context, string) error   { return nil }
func (f *fakeCache) Increment(context.Context, string) (int64, error) {
	return 0, nil
}
func (f *fakeCache) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}
func (f *fakeCache) MSet(context.Context, map[string]interface{}, time.Duration) error {
	return nil
}
func (f *fakeCache) MGet(context.Context, ...string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeCache) TryLock(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeCache) Unlock(context.Context, string) error { return nil }

func testIngestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	lg, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	b, err := eventbus.New(t.TempDir(), lg, metrics.Noop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestIngest(t *testing.T, bus *eventbus.Bus, dedupe *fakeCache) *SignalIngest {
	t.Helper()
	lg, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	if dedupe != nil {
		return NewSignalIngest("signals.raw", bus, dedupe, metrics.Noop{}, lg)
	}
	return NewSignalIngest("signals.raw", bus, nil, metrics.Noop{}, lg)
}

func TestHandlePublishesSignalToBus(t *testing.T) {
	bus := testIngestBus(t)
	h := newTestIngest(t, bus, nil)

	var got *models.Event
	bus.Subscribe([]models.ChannelType{models.ChannelSignal}, func(e *models.Event) { got = e })

	msg := []byte(`{"signal_id":"sig:1","symbol":"XVSUSDT","direction":"long","price":3.54,"delta_pct":2.9,"volume_24h":5300000}`)
	require.NoError(t, h.Handle(context.Background(), msg))

	require.NotNil(t, got)
	assert.Equal(t, "kafka:signals.raw", got.Source)
	m := got.PayloadMap()
	require.NotNil(t, m)
	assert.Equal(t, "sig:1", m["signal_id"])
	assert.Equal(t, "XVSUSDT", m["symbol"])
}

func TestHandleRejectsBadPayload(t *testing.T) {
	bus := testIngestBus(t)
	h := newTestIngest(t, bus, nil)

	assert.Error(t, h.Handle(context.Background(), []byte("not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"price":1.0}`))) // no symbol
}

func TestHandleDeduplicatesBySignalID(t *testing.T) {
	bus := testIngestBus(t)
	dedupe := newFakeCache()
	h := newTestIngest(t, bus, dedupe)

	published := 0
	bus.Subscribe([]models.ChannelType{models.ChannelSignal}, func(*models.Event) { published++ })

	msg := []byte(`{"signal_id":"sig:dup","symbol":"BTCUSDT","price":42000}`)
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Equal(t, 1, published)
	assert.Equal(t, 1, dedupe.sets)
	assert.True(t, dedupe.seen["ingest:sig:dup"])
}

func TestHandleWithoutIDSkipsDedupe(t *testing.T) {
	bus := testIngestBus(t)
	dedupe := newFakeCache()
	h := newTestIngest(t, bus, dedupe)

	published := 0
	bus.Subscribe([]models.ChannelType{models.ChannelSignal}, func(*models.Event) { published++ })

	msg := []byte(`{"symbol":"BTCUSDT","price":42000}`)
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Equal(t, 2, published)
	assert.Zero(t, dedupe.sets)
}

func TestTopic(t *testing.T) {
	h := newTestIngest(t, testIngestBus(t), nil)
	assert.Equal(t, "signals.raw", h.Topic())
}
