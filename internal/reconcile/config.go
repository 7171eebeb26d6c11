// Package reconcile decides, per request, whether the file-backed
// primary payload can be trusted or must be cross-checked against live
// secondary sources, and selects the most trustworthy payload.
package reconcile

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds the detector thresholds and disagreement parameters.
// Flow values are yen.
type Config struct {
	// WindowDays is the required day-detail count; fewer raises
	// insufficient_days. Default: 5.
	WindowDays int `yaml:"window_days"`

	// SpikeFloor is the minimum single-day |net| for a spike to be
	// significant at all. Default: 10e9.
	SpikeFloor int64 `yaml:"spike_floor"`

	// SpikeRatio is how many times the peak day must exceed the mean of
	// the other days. Default: 10.
	SpikeRatio float64 `yaml:"spike_ratio"`

	// AbsTotalCeiling marks the window's aggregate |net| implausible.
	// Default: 20e12.
	AbsTotalCeiling int64 `yaml:"abs_total_ceiling"`

	// StaleDays is how many calendar days the primary's latest date may
	// trail "now" before stale_primary fires (latest-data requests
	// only). Default: 4.
	StaleDays int `yaml:"stale_days"`

	// DisagreementRatio is the magnitude ratio at which primary and
	// secondary are considered to disagree. Default: 2.5.
	DisagreementRatio float64 `yaml:"disagreement_ratio"`

	// SignFloor is the minimum |net| both payloads must carry before a
	// sign mismatch counts; sub-threshold noise is ignored. Default: 3e9.
	SignFloor int64 `yaml:"sign_floor"`

	// MagnitudeFloor is the minimum larger-|net| for either disagreement
	// rule to fire on the sign path. Default: 10e9.
	MagnitudeFloor int64 `yaml:"magnitude_floor"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		WindowDays:        5,
		SpikeFloor:        10_000_000_000,
		SpikeRatio:        10,
		AbsTotalCeiling:   20_000_000_000_000,
		StaleDays:         4,
		DisagreementRatio: 2.5,
		SignFloor:         3_000_000_000,
		MagnitudeFloor:    10_000_000_000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowDays <= 0 {
		c.WindowDays = d.WindowDays
	}
	if c.SpikeFloor <= 0 {
		c.SpikeFloor = d.SpikeFloor
	}
	if c.SpikeRatio <= 0 {
		c.SpikeRatio = d.SpikeRatio
	}
	if c.AbsTotalCeiling <= 0 {
		c.AbsTotalCeiling = d.AbsTotalCeiling
	}
	if c.StaleDays <= 0 {
		c.StaleDays = d.StaleDays
	}
	if c.DisagreementRatio <= 0 {
		c.DisagreementRatio = d.DisagreementRatio
	}
	if c.SignFloor <= 0 {
		c.SignFloor = d.SignFloor
	}
	if c.MagnitudeFloor <= 0 {
		c.MagnitudeFloor = d.MagnitudeFloor
	}
	return c
}

// LoadConfig reads thresholds from a YAML file. The file has a top-level
// "reconcile" key; absent values fall back to defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "reconcile: read config %s", path)
	}

	var wrapper struct {
		Reconcile Config `yaml:"reconcile"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Config{}, eris.Wrap(err, "reconcile: parse config")
	}

	return wrapper.Reconcile.withDefaults(), nil
}
