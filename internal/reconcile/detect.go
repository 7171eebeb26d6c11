package reconcile

import (
	"time"

	"github.com/sells-group/marketflow-cli/internal/model"
)

// Flag names a signal that the primary payload may be untrustworthy.
// Flags are computed fresh on every reconciliation; they are never
// cached on their own, only as part of a result's provenance.
type Flag string

const (
	FlagMissingPrimary   Flag = "missing_primary"
	FlagInsufficientDays Flag = "insufficient_days"
	FlagSingleDaySpike   Flag = "single_day_spike"
	FlagExtremeAbsTotal  Flag = "extreme_abs_total"
	FlagStalePrimary     Flag = "stale_primary"
)

// Request describes one reconciliation call.
type Request struct {
	Ticker string
	// Date is the requested trading day (YYYY-MM-DD); empty means
	// "latest available".
	Date string
	// Now anchors the staleness check; the zero value means time.Now().
	Now time.Time
	// CrossCheck forces a secondary consult even with a clean primary,
	// so the disagreement test alone decides whether to switch.
	CrossCheck bool
}

func (r Request) now() time.Time {
	if r.Now.IsZero() {
		return time.Now()
	}
	return r.Now
}

// Detector is one independent anomaly rule over the primary payload.
type Detector interface {
	Flag() Flag
	Detect(primary *model.TrendSummary, req Request) bool
}

// DefaultDetectors returns the standard rule set for cfg. missing_primary
// is not a detector; the engine raises it directly when the primary is
// absent.
func DefaultDetectors(cfg Config) []Detector {
	cfg = cfg.withDefaults()
	return []Detector{
		insufficientDays{window: cfg.WindowDays},
		singleDaySpike{floor: cfg.SpikeFloor, ratio: cfg.SpikeRatio},
		extremeAbsTotal{ceiling: cfg.AbsTotalCeiling},
		stalePrimary{maxLagDays: cfg.StaleDays},
	}
}

type insufficientDays struct {
	window int
}

func (d insufficientDays) Flag() Flag { return FlagInsufficientDays }

func (d insufficientDays) Detect(primary *model.TrendSummary, _ Request) bool {
	return len(primary.Days) < d.window
}

type singleDaySpike struct {
	floor int64
	ratio float64
}

func (d singleDaySpike) Flag() Flag { return FlagSingleDaySpike }

// Detect flags a window dominated by one day: the peak |net| must clear
// the significance floor and dwarf the mean of the remaining days.
func (d singleDaySpike) Detect(primary *model.TrendSummary, _ Request) bool {
	if len(primary.Days) < 2 {
		return false
	}

	var peak, sumAbs int64
	for _, day := range primary.Days {
		v := abs64(day.NetValue)
		sumAbs += v
		if v > peak {
			peak = v
		}
	}
	if peak < d.floor {
		return false
	}

	othersMean := float64(sumAbs-peak) / float64(len(primary.Days)-1)
	if othersMean <= 0 {
		// All remaining days are flat; a significant peak stands alone.
		return true
	}
	return float64(peak) >= d.ratio*othersMean
}

type extremeAbsTotal struct {
	ceiling int64
}

func (d extremeAbsTotal) Flag() Flag { return FlagExtremeAbsTotal }

func (d extremeAbsTotal) Detect(primary *model.TrendSummary, _ Request) bool {
	var sumAbs int64
	for _, day := range primary.Days {
		sumAbs += abs64(day.NetValue)
	}
	return sumAbs >= d.ceiling
}

type stalePrimary struct {
	maxLagDays int
}

func (d stalePrimary) Flag() Flag { return FlagStalePrimary }

// Detect fires only for latest-data requests: a caller asking for a
// specific historical date expects old data.
func (d stalePrimary) Detect(primary *model.TrendSummary, req Request) bool {
	if req.Date != "" {
		return false
	}
	if primary.LatestDate == "" {
		return true
	}
	latest, err := time.Parse("2006-01-02", primary.LatestDate)
	if err != nil {
		return true
	}
	now := req.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	lag := int(today.Sub(latest).Hours() / 24)
	return lag > d.maxLagDays
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
