package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())

	assert.Equal(t, 0.65, p.PredictionMin)
	assert.Equal(t, 0.80, p.PredictionStrong)
	assert.Equal(t, 0.30, p.AnomalyMax)
	assert.Equal(t, 0.50, p.AnomalyCritical)
	assert.Equal(t, 5_000_000.0, p.VolumeMin24h)
	assert.Equal(t, 20_000_000.0, p.VolumeStrong)
	assert.Equal(t, []string{"trending_up", "high_volatility"}, p.AllowedRegimes)
	assert.Equal(t, 5, p.MaxPositions)
	assert.Equal(t, 300.0, p.CooldownSeconds)
	assert.Equal(t, -0.3, p.NewsNegativeThreshold)
}

func TestPolicyValidate(t *testing.T) {
	p := DefaultPolicy()
	p.PredictionMin = 1.2
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.AnomalyCritical = 0.2 // below anomaly_max
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.AllowedRegimes = nil
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.MaxPositions = 0
	assert.Error(t, p.Validate())
}

func TestRegimeAllowed(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.RegimeAllowed(RegimeTrendingUp))
	assert.True(t, p.RegimeAllowed(RegimeHighVolatility))
	assert.False(t, p.RegimeAllowed(RegimeRanging))
	assert.False(t, p.RegimeAllowed(""))
}

func TestSnapshotIsolatesRegimes(t *testing.T) {
	p := DefaultPolicy()
	snap := p.Snapshot()
	snap.AllowedRegimes[0] = "tampered"
	assert.Equal(t, "trending_up", p.AllowedRegimes[0])
}
