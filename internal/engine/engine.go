package engine

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

const shardCount = 64

// Engine is the fail-closed policy evaluator. Evaluate runs the fixed
// battery of eight checks against a signal context and returns an
// immutable, checksummed decision. It never returns an error: absence
// of required data is a failing check, not a fault.
//
// The cooldown map and blocklist are owned exclusively by the engine.
// Evaluations for the same symbol serialize on a per-symbol shard so
// the cooldown check-then-update is atomic per symbol; different
// symbols evaluate concurrently.
type Engine struct {
	lg      *logger.Logger
	metrics repository.Metrics
	now     func() time.Time

	cfgMu sync.RWMutex
	cfg   *models.PolicyConfig

	blockMu sync.RWMutex
	blocked map[string]struct{}

	shards [shardCount]sync.Mutex

	coolMu  sync.Mutex
	lastBuy map[string]time.Time

	statMu      sync.Mutex
	evaluated   uint64
	buys        uint64
	skips       uint64
	skipReasons map[string]uint64
}

// New creates an engine with the given policy (defaults when nil).
func New(cfg *models.PolicyConfig, lg *logger.Logger, m repository.Metrics) *Engine {
	if cfg == nil {
		cfg = models.DefaultPolicy()
	}
	return &Engine{
		lg:          lg,
		metrics:     m,
		now:         time.Now,
		cfg:         cfg,
		blocked:     make(map[string]struct{}),
		lastBuy:     make(map[string]time.Time),
		skipReasons: make(map[string]uint64),
	}
}

// Evaluate runs all eight checks and produces a decision. BUY requires
// every check to pass; a blocklisted symbol short-circuits to SKIP with
// every check marked failed and no other check run.
func (e *Engine) Evaluate(sc *models.SignalContext) *models.Decision {
	symbol := NormalizeSymbol(sc.Symbol)
	cfg := e.configSnapshot()

	if e.isBlocked(symbol) {
		d := e.blockedDecision(sc, symbol)
		e.record(d)
		return d
	}

	shard := &e.shards[shardIndex(symbol)]
	shard.Lock()
	defer shard.Unlock()

	now := e.now()
	evidence := []Evidence{
		checkRegime(sc, &cfg),
		checkAnomaly(sc, &cfg),
		checkPrediction(sc, &cfg),
		checkCircuit(sc, &cfg),
		checkVolume(sc, &cfg),
		checkNews(sc, &cfg),
		checkCooldown(e.lastBuyAt(symbol), now, &cfg),
		checkPositions(sc, &cfg),
	}

	d := &models.Decision{
		SignalID:   sc.SignalID,
		Symbol:     symbol,
		Action:     models.ActionBuy,
		EntryPrice: sc.Price,
		Checks:     make(map[string]bool, len(evidence)),
		Values:     make(map[string]interface{}, len(evidence)),
	}
	passed := 0
	for _, ev := range evidence {
		d.Checks[ev.Name] = ev.OK
		d.Values[ev.Name] = ev.Value
		if ev.OK {
			passed++
			continue
		}
		d.Action = models.ActionSkip
		d.Reasons = append(d.Reasons, ev.Reason)
	}

	if d.Action == models.ActionBuy {
		e.markBuy(symbol, now)
		e.applySizing(d, sc, &cfg)
		d.Confidence = *sc.PredictionProb // prediction_ok guarantees presence
	} else {
		d.Confidence = float64(passed) / float64(len(evidence))
	}

	if err := d.Seal(); err != nil {
		// Unsealable decisions would break the audit chain; log loudly.
		e.metrics.RecordError("engine_seal")
		e.lg.Error("engine: seal decision failed", logger.String("signal_id", sc.SignalID), logger.Error(err))
	}
	e.record(d)
	return d
}

func (e *Engine) blockedDecision(sc *models.SignalContext, symbol string) *models.Decision {
	d := &models.Decision{
		SignalID:   sc.SignalID,
		Symbol:     symbol,
		Action:     models.ActionSkip,
		EntryPrice: sc.Price,
		Checks:     make(map[string]bool, len(models.CheckOrder)),
		Values:     make(map[string]interface{}, len(models.CheckOrder)),
		Reasons:    []models.SkipReason{models.ReasonSymbolBlocked},
	}
	for _, name := range models.CheckOrder {
		d.Checks[name] = false
		d.Values[name] = nil
	}
	if err := d.Seal(); err != nil {
		e.metrics.RecordError("engine_seal")
		e.lg.Error("engine: seal decision failed", logger.String("signal_id", sc.SignalID), logger.Error(err))
	}
	return d
}

func (e *Engine) applySizing(d *models.Decision, sc *models.SignalContext, cfg *models.PolicyConfig) {
	mod := 1.0
	if sc.PredictionProb != nil && *sc.PredictionProb >= cfg.PredictionStrong {
		mod *= 1.5
	}
	if sc.Volume24h >= cfg.VolumeStrong {
		mod *= 1.2
	}
	if mod > 2.0 {
		mod = 2.0
	}
	d.PositionSizeModifier = mod
	d.StopLossPct = 2.0
	if strings.EqualFold(sc.Direction, models.DirectionLong) {
		d.TakeProfitPct = math.Max(5.0, 2.0*sc.DeltaPct)
	} else {
		d.TakeProfitPct = math.Max(3.0, 1.5*sc.DeltaPct)
	}
}

// UpdateConfig changes one policy field by name at runtime. The change
// is validated against the full policy before it is committed.
func (e *Engine) UpdateConfig(field string, value interface{}) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	next := e.cfg.Snapshot()
	switch field {
	case "prediction_min":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.PredictionMin = f
	case "prediction_strong":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.PredictionStrong = f
	case "anomaly_max":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.AnomalyMax = f
	case "anomaly_critical":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.AnomalyCritical = f
	case "volume_min_24h":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.VolumeMin24h = f
	case "volume_strong":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.VolumeStrong = f
	case "allowed_regimes":
		rs, err := asStrings(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.AllowedRegimes = rs
	case "max_positions":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.MaxPositions = int(f)
	case "cooldown_seconds":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.CooldownSeconds = f
	case "news_negative_threshold":
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		next.NewsNegativeThreshold = f
	default:
		return fmt.Errorf("update config: unknown field %q", field)
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*e.cfg = next
	e.lg.Info("engine: config updated", logger.String("field", field), logger.Any("value", value))
	return nil
}

// BlockSymbol adds a symbol (upper-cased) to the blocklist.
func (e *Engine) BlockSymbol(symbol string) {
	symbol = NormalizeSymbol(symbol)
	e.blockMu.Lock()
	e.blocked[symbol] = struct{}{}
	e.blockMu.Unlock()
	e.lg.Warn("engine: symbol blocked", logger.String("symbol", symbol))
}

// UnblockSymbol removes a symbol from the blocklist.
func (e *Engine) UnblockSymbol(symbol string) {
	symbol = NormalizeSymbol(symbol)
	e.blockMu.Lock()
	delete(e.blocked, symbol)
	e.blockMu.Unlock()
	e.lg.Info("engine: symbol unblocked", logger.String("symbol", symbol))
}

// Stats is the engine observability snapshot.
type Stats struct {
	Evaluated   uint64              `json:"evaluated"`
	Buys        uint64              `json:"buys"`
	Skips       uint64              `json:"skips"`
	BuyRate     float64             `json:"buy_rate"`
	SkipReasons map[string]uint64   `json:"skip_reasons"`
	Blocked     []string            `json:"blocked_symbols"`
	Config      models.PolicyConfig `json:"config"`
}

// Stats returns running totals, the skip-reason histogram, the current
// blocklist and a policy snapshot.
func (e *Engine) Stats() Stats {
	st := Stats{Config: e.configSnapshot()}

	e.statMu.Lock()
	st.Evaluated = e.evaluated
	st.Buys = e.buys
	st.Skips = e.skips
	st.SkipReasons = make(map[string]uint64, len(e.skipReasons))
	for k, v := range e.skipReasons {
		st.SkipReasons[k] = v
	}
	e.statMu.Unlock()

	if st.Evaluated > 0 {
		st.BuyRate = float64(st.Buys) / float64(st.Evaluated)
	}

	e.blockMu.RLock()
	st.Blocked = make([]string, 0, len(e.blocked))
	for s := range e.blocked {
		st.Blocked = append(st.Blocked, s)
	}
	e.blockMu.RUnlock()
	sort.Strings(st.Blocked)
	return st
}

// LastBuy reports the recorded time of the symbol's last BUY.
func (e *Engine) LastBuy(symbol string) (time.Time, bool) {
	e.coolMu.Lock()
	defer e.coolMu.Unlock()
	t, ok := e.lastBuy[NormalizeSymbol(symbol)]
	return t, ok
}

// NormalizeSymbol upper-cases and trims a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (e *Engine) configSnapshot() models.PolicyConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Snapshot()
}

func (e *Engine) isBlocked(symbol string) bool {
	e.blockMu.RLock()
	defer e.blockMu.RUnlock()
	_, ok := e.blocked[symbol]
	return ok
}

func (e *Engine) lastBuyAt(symbol string) time.Time {
	e.coolMu.Lock()
	defer e.coolMu.Unlock()
	return e.lastBuy[symbol]
}

func (e *Engine) markBuy(symbol string, at time.Time) {
	e.coolMu.Lock()
	e.lastBuy[symbol] = at
	e.coolMu.Unlock()
}

func (e *Engine) record(d *models.Decision) {
	e.metrics.RecordDecision(string(d.Action))
	e.statMu.Lock()
	e.evaluated++
	if d.Action == models.ActionBuy {
		e.buys++
	} else {
		e.skips++
	}
	for _, r := range d.Reasons {
		e.skipReasons[string(r)]++
		e.metrics.RecordSkipReason(string(r))
	}
	e.statMu.Unlock()
}

func shardIndex(symbol string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % shardCount)
}

func asFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func asStrings(v interface{}) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...), nil
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}
