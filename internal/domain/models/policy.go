package models

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// PolicyConfig holds the runtime-tunable decision thresholds. It is
// owned exclusively by the decision engine; other components see it
// only through Snapshot copies.
type PolicyConfig struct {
	PredictionMin    float64 `yaml:"prediction_min" default:"0.65" validate:"gte=0,lte=1"`
	PredictionStrong float64 `yaml:"prediction_strong" default:"0.80" validate:"gte=0,lte=1"`

	AnomalyMax      float64 `yaml:"anomaly_max" default:"0.30" validate:"gte=0,lte=1"`
	AnomalyCritical float64 `yaml:"anomaly_critical" default:"0.50" validate:"gte=0,lte=1"`

	VolumeMin24h float64 `yaml:"volume_min_24h" default:"5000000" validate:"gte=0"`
	VolumeStrong float64 `yaml:"volume_strong" default:"20000000" validate:"gte=0"`

	AllowedRegimes []string `yaml:"allowed_regimes" default:"[\"trending_up\",\"high_volatility\"]" validate:"min=1"`

	MaxPositions    int     `yaml:"max_positions" default:"5" validate:"gt=0"`
	CooldownSeconds float64 `yaml:"cooldown_seconds" default:"300" validate:"gte=0"`

	NewsNegativeThreshold float64 `yaml:"news_negative_threshold" default:"-0.3" validate:"gte=-1,lte=1"`
}

var policyValidate = validator.New()

// DefaultPolicy returns a PolicyConfig populated with the defaults.
func DefaultPolicy() *PolicyConfig {
	p := &PolicyConfig{}
	_ = defaults.Set(p)
	return p
}

// Validate checks threshold sanity.
func (p *PolicyConfig) Validate() error {
	if err := policyValidate.Struct(p); err != nil {
		return fmt.Errorf("policy config: %w", err)
	}
	if p.AnomalyCritical < p.AnomalyMax {
		return fmt.Errorf("policy config: anomaly_critical %.2f below anomaly_max %.2f", p.AnomalyCritical, p.AnomalyMax)
	}
	return nil
}

// RegimeAllowed reports membership in the allowed regime set.
func (p *PolicyConfig) RegimeAllowed(regime string) bool {
	for _, r := range p.AllowedRegimes {
		if r == regime {
			return true
		}
	}
	return false
}

// Snapshot returns a copy safe to hand outside the engine.
func (p *PolicyConfig) Snapshot() PolicyConfig {
	out := *p
	out.AllowedRegimes = append([]string(nil), p.AllowedRegimes...)
	return out
}
