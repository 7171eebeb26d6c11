package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marketflow-cli/internal/model"
)

func trendWithNets(nets ...int64) *model.TrendSummary {
	t := &model.TrendSummary{Ticker: "7203"}
	base := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	for i, n := range nets {
		buy := n
		var sell int64
		if n < 0 {
			buy, sell = 0, -n
		}
		t.Days = append(t.Days, model.DayFlow{
			Date:      base.AddDate(0, 0, i).Format("2006-01-02"),
			BuyValue:  buy,
			SellValue: sell,
		})
	}
	t.Finalize()
	return t
}

func findDetector(t *testing.T, flag Flag) Detector {
	t.Helper()
	for _, d := range DefaultDetectors(DefaultConfig()) {
		if d.Flag() == flag {
			return d
		}
	}
	t.Fatalf("no detector for flag %s", flag)
	return nil
}

func TestInsufficientDays(t *testing.T) {
	d := findDetector(t, FlagInsufficientDays)

	assert.True(t, d.Detect(trendWithNets(1, 2, 3, 4), Request{}))
	assert.False(t, d.Detect(trendWithNets(1, 2, 3, 4, 5), Request{}))
}

func TestSingleDaySpike_Boundary(t *testing.T) {
	d := findDetector(t, FlagSingleDaySpike)

	// Peak clears the 10B significance floor and dwarfs the other days.
	assert.True(t, d.Detect(trendWithNets(1, 1, 1, 1, 50_000_000_000), Request{}))

	// Just under the floor: not significant, regardless of dominance.
	assert.False(t, d.Detect(trendWithNets(1, 1, 1, 1, 9_999_999_999), Request{}))
}

func TestSingleDaySpike_RequiresDominance(t *testing.T) {
	d := findDetector(t, FlagSingleDaySpike)

	// Peak over the floor but under 10x the mean of the other days.
	assert.False(t, d.Detect(trendWithNets(
		5_000_000_000, 5_000_000_000, 5_000_000_000, 5_000_000_000, 12_000_000_000,
	), Request{}))

	// Negative spikes count by magnitude.
	assert.True(t, d.Detect(trendWithNets(1, 1, 1, 1, -50_000_000_000), Request{}))
}

func TestSingleDaySpike_FlatOthers(t *testing.T) {
	d := findDetector(t, FlagSingleDaySpike)
	assert.True(t, d.Detect(trendWithNets(0, 0, 0, 0, 10_000_000_000), Request{}))
}

func TestExtremeAbsTotal(t *testing.T) {
	d := findDetector(t, FlagExtremeAbsTotal)

	assert.True(t, d.Detect(trendWithNets(
		5_000_000_000_000, -5_000_000_000_000, 5_000_000_000_000, -5_000_000_000_000, 1,
	), Request{}), "absolute, not net, totals are compared against the ceiling")

	assert.False(t, d.Detect(trendWithNets(
		4_000_000_000_000, 4_000_000_000_000, 4_000_000_000_000, 4_000_000_000_000, 3_999_999_999_999,
	), Request{}))
}

func TestStalePrimary(t *testing.T) {
	d := findDetector(t, FlagStalePrimary)
	now := time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)

	fresh := trendWithNets(1, 2, 3, 4, 5) // latest 2026-08-28, 3 days behind
	assert.False(t, d.Detect(fresh, Request{Now: now}))

	stale := &model.TrendSummary{Days: []model.DayFlow{{Date: "2026-08-26", BuyValue: 1}}}
	stale.Finalize() // 5 days behind
	assert.True(t, d.Detect(stale, Request{Now: now}))

	// Historical requests expect old data; staleness never fires.
	assert.False(t, d.Detect(stale, Request{Now: now, Date: "2026-08-26"}))
}

func TestStalePrimary_ExactBoundary(t *testing.T) {
	d := findDetector(t, FlagStalePrimary)
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	// Exactly 4 days behind: allowed.
	onEdge := &model.TrendSummary{Days: []model.DayFlow{{Date: "2026-08-27", BuyValue: 1}}}
	onEdge.Finalize()
	assert.False(t, d.Detect(onEdge, Request{Now: now}))

	over := &model.TrendSummary{Days: []model.DayFlow{{Date: "2026-08-26", BuyValue: 1}}}
	over.Finalize()
	assert.True(t, d.Detect(over, Request{Now: now}))
}
