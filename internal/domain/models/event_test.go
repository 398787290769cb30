package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventSealsEnvelope(t *testing.T) {
	ev, err := NewEvent(ChannelSignal, map[string]interface{}{"symbol": "XVSUSDT", "price": 3.54}, "test")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ev.ID, "evt:signals:"), ev.ID)
	assert.Len(t, ev.ID, len("evt:signals:")+12)
	assert.Equal(t, ChannelSignal, ev.Type)
	assert.Equal(t, "test", ev.Source)
	assert.True(t, strings.HasPrefix(ev.Checksum, "sha256:"))
	assert.Len(t, ev.Checksum, len("sha256:")+16)
	assert.True(t, ev.IsValid())

	ts, err := time.Parse(EventTimeFormat, ev.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
	assert.False(t, ev.Time().IsZero())
}

func TestEventIsValidDetectsTampering(t *testing.T) {
	ev, err := NewEvent(ChannelDecision, map[string]interface{}{"action": "BUY"}, "test")
	require.NoError(t, err)
	require.True(t, ev.IsValid())

	ev.Payload = map[string]interface{}{"action": "SKIP"}
	assert.False(t, ev.IsValid())
}

func TestChecksumIgnoresKeyOrder(t *testing.T) {
	a, err := ChecksumOf(map[string]interface{}{"x": 1, "y": "two", "z": []int{3}})
	require.NoError(t, err)
	b, err := ChecksumOf(map[string]interface{}{"z": []int{3}, "y": "two", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := ChecksumOf(map[string]interface{}{"x": 2, "y": "two", "z": []int{3}})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestChecksumStructAndMapAgree(t *testing.T) {
	type payload struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	a, err := ChecksumOf(payload{Symbol: "BTCUSDT", Price: 42000})
	require.NoError(t, err)
	b, err := ChecksumOf(map[string]interface{}{"price": 42000.0, "symbol": "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewEventRejectsUnmarshalablePayload(t *testing.T) {
	_, err := NewEvent(ChannelSignal, func() {}, "test")
	assert.Error(t, err)
}

func TestPayloadMap(t *testing.T) {
	ev, err := NewEvent(ChannelOutcome, map[string]interface{}{"pnl": 1.5}, "test")
	require.NoError(t, err)
	m := ev.PayloadMap()
	require.NotNil(t, m)
	assert.Equal(t, 1.5, m["pnl"])

	scalar, err := NewEvent(ChannelLog, "just a line", "test")
	require.NoError(t, err)
	assert.Nil(t, scalar.PayloadMap())
}
