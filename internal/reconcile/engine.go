package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/marketflow-cli/internal/model"
)

// PrimarySourceName tags results whose payload came from the file-backed
// primary source.
const PrimarySourceName = "primary"

// Source is one live secondary data source. Implementations are queried
// in registration order (highest priority first) and must be safe for
// concurrent use.
type Source interface {
	// Name identifies the source in provenance metadata.
	Name() string
	// SupportsHistorical reports whether the source can serve a specific
	// past trading day. Latest-only sources are skipped entirely when
	// the caller requested a historical date.
	SupportsHistorical() bool
	// FetchTrend fetches the trend window for a ticker. An empty date
	// means "latest".
	FetchTrend(ctx context.Context, ticker, date string) (*model.TrendSummary, error)
}

// AuditSink receives results that consulted a secondary source. Sink
// failures are logged by the engine and never propagated.
type AuditSink interface {
	Record(ctx context.Context, req Request, res *Result) error
}

// Result is the outcome of one reconciliation.
type Result struct {
	RequestID        string
	SelectedSource   string
	Payload          *model.TrendSummary
	Flags            []Flag
	ConsultedSources []string
	Disagreement     bool
}

// Provenance converts the result into the payload-embedded form.
func (r *Result) Provenance() *model.Provenance {
	flags := make([]string, len(r.Flags))
	for i, f := range r.Flags {
		flags[i] = string(f)
	}
	return &model.Provenance{
		RequestID:        r.RequestID,
		SelectedSource:   r.SelectedSource,
		AnomalyFlags:     flags,
		ConsultedSources: r.ConsultedSources,
		GeneratedAt:      time.Now().UTC(),
	}
}

// EngineStats is a point-in-time view of the engine's counters.
type EngineStats struct {
	Reconciliations   int64
	SecondaryConsults int64
	Disagreements     int64
	FlagCounts        map[Flag]int64
}

// Engine runs anomaly detection and multi-source selection. It is
// stateless between requests beyond its counters.
type Engine struct {
	detectors []Detector
	sources   []Source
	cfg       Config
	audit     AuditSink // may be nil

	reconciliations atomic.Int64
	consults        atomic.Int64
	disagreements   atomic.Int64
	flagCounts      [5]atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditSink records secondary-consulting results to the sink.
func WithAuditSink(sink AuditSink) Option {
	return func(e *Engine) { e.audit = sink }
}

// WithDetectors overrides the default detector set.
func WithDetectors(detectors []Detector) Option {
	return func(e *Engine) { e.detectors = detectors }
}

// NewEngine creates an engine over the given secondary sources, which
// must already be ordered by priority (highest first).
func NewEngine(cfg Config, sources []Source, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg.withDefaults(),
		detectors: DefaultDetectors(cfg),
		sources:   sources,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile runs the per-request state machine: detect anomalies on the
// primary, consult secondaries only when warranted, apply the
// disagreement test, and select the most trustworthy payload. It never
// fails: with nothing usable it returns a result with a nil payload.
func (e *Engine) Reconcile(ctx context.Context, req Request, primary *model.TrendSummary) *Result {
	e.reconciliations.Add(1)

	res := &Result{
		RequestID:      uuid.New().String(),
		SelectedSource: PrimarySourceName,
		Payload:        primary,
	}

	if primary == nil {
		res.Flags = append(res.Flags, FlagMissingPrimary)
	} else {
		for _, d := range e.detectors {
			if d.Detect(primary, req) {
				res.Flags = append(res.Flags, d.Flag())
			}
		}
	}
	e.countFlags(res.Flags)

	// Trustworthy primary: never pay for a live call.
	if len(res.Flags) == 0 && !req.CrossCheck {
		return res
	}

	secondary, secondaryName := e.fetchSecondary(ctx, req, res)

	if primary != nil && secondary != nil {
		res.Disagreement = e.disagrees(primary, secondary)
		if res.Disagreement {
			e.disagreements.Add(1)
		}
	}

	// Selection: a missing primary, any anomaly, or a detected
	// disagreement hands the request to the best available secondary.
	if secondary != nil && (primary == nil || len(res.Flags) > 0 || res.Disagreement) {
		res.SelectedSource = secondaryName
		res.Payload = secondary
	}

	if e.audit != nil && len(res.ConsultedSources) > 0 {
		if err := e.audit.Record(ctx, req, res); err != nil {
			zap.L().Warn("reconcile: audit record failed",
				zap.String("request_id", res.RequestID),
				zap.Error(err),
			)
		}
	}

	return res
}

// fetchSecondary walks the sources in priority order and returns the
// first usable payload. Source errors mean "unavailable": they are
// logged at debug level and the walk continues.
func (e *Engine) fetchSecondary(ctx context.Context, req Request, res *Result) (*model.TrendSummary, string) {
	for _, src := range e.sources {
		if req.Date != "" && !src.SupportsHistorical() {
			continue
		}

		res.ConsultedSources = append(res.ConsultedSources, src.Name())
		e.consults.Add(1)

		payload, err := src.FetchTrend(ctx, req.Ticker, req.Date)
		if err != nil {
			zap.L().Debug("reconcile: secondary source unavailable",
				zap.String("source", src.Name()),
				zap.String("ticker", req.Ticker),
				zap.Error(err),
			)
			continue
		}
		if payload == nil || len(payload.Days) == 0 {
			continue
		}
		return payload, src.Name()
	}
	return nil, ""
}

// disagrees applies the magnitude-ratio and sign heuristics. Sub-floor
// differences are ignored to avoid false positives on noise.
func (e *Engine) disagrees(primary, secondary *model.TrendSummary) bool {
	p, s := abs64(primary.NetTotal), abs64(secondary.NetTotal)
	high, low := p, s
	if s > p {
		high, low = s, p
	}
	if low < 1 {
		low = 1
	}
	if float64(high)/float64(low) >= e.cfg.DisagreementRatio {
		return true
	}

	signsDiffer := (primary.NetTotal < 0) != (secondary.NetTotal < 0)
	return signsDiffer &&
		p >= e.cfg.SignFloor && s >= e.cfg.SignFloor &&
		high >= e.cfg.MagnitudeFloor
}

func (e *Engine) countFlags(flags []Flag) {
	for _, f := range flags {
		if i := flagIndex(f); i >= 0 {
			e.flagCounts[i].Add(1)
		}
	}
}

var flagOrder = [5]Flag{
	FlagMissingPrimary,
	FlagInsufficientDays,
	FlagSingleDaySpike,
	FlagExtremeAbsTotal,
	FlagStalePrimary,
}

func flagIndex(f Flag) int {
	for i, known := range flagOrder {
		if known == f {
			return i
		}
	}
	return -1
}

// Stats returns the engine's counters.
func (e *Engine) Stats() EngineStats {
	counts := make(map[Flag]int64, len(flagOrder))
	for i, f := range flagOrder {
		if n := e.flagCounts[i].Load(); n > 0 {
			counts[f] = n
		}
	}
	return EngineStats{
		Reconciliations:   e.reconciliations.Load(),
		SecondaryConsults: e.consults.Load(),
		Disagreements:     e.disagreements.Load(),
		FlagCounts:        counts,
	}
}
