package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyDecision() *Decision {
	checks := make(map[string]bool, len(CheckOrder))
	for _, name := range CheckOrder {
		checks[name] = true
	}
	return &Decision{
		SignalID:   "sig:XVSUSDT:1",
		Symbol:     "XVSUSDT",
		Action:     ActionBuy,
		Confidence: 0.72,
		Checks:     checks,
	}
}

func TestDecisionSealAndValidate(t *testing.T) {
	d := buyDecision()
	require.NoError(t, d.Seal())

	assert.NotEmpty(t, d.Timestamp)
	assert.Contains(t, d.Checksum, "sha256:")
	assert.True(t, d.IsValid())
}

func TestDecisionChecksumCoversOutcomeFields(t *testing.T) {
	d := buyDecision()
	require.NoError(t, d.Seal())

	d.Action = ActionSkip
	assert.False(t, d.IsValid())

	d = buyDecision()
	require.NoError(t, d.Seal())
	d.Reasons = append(d.Reasons, ReasonVolumeLow)
	assert.False(t, d.IsValid())

	// sizing fields are advisory and not part of the seal
	d = buyDecision()
	require.NoError(t, d.Seal())
	d.PositionSizeModifier = 9.0
	assert.True(t, d.IsValid())
}

func TestAllChecksPassed(t *testing.T) {
	d := buyDecision()
	assert.True(t, d.AllChecksPassed())

	d.Checks[CheckVolume] = false
	assert.False(t, d.AllChecksPassed())

	assert.False(t, (&Decision{}).AllChecksPassed())
}
