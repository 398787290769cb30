package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/engine"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/service/ratelimit"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

// Collaborators bundles the external enrichment sources the processor
// consults. Nil members behave like null objects: the corresponding
// context field stays absent and the engine's fail-closed policy
// decides what that means.
type Collaborators struct {
	Price     service.PriceFeed
	Regime    service.RegimeProvider
	Anomaly   service.AnomalyProvider
	Predictor service.Predictor
	Sentiment service.SentimentProvider
	Outcome   service.OutcomeTracker
}

// Option configures Processor.
type Option func(*Processor)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the intake queue capacity.
func WithQueueSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithQuoteAsset sets the suffix appended to unqualified symbols.
func WithQuoteAsset(q string) Option {
	return func(p *Processor) {
		if q != "" {
			p.quote = engine.NormalizeSymbol(q)
		}
	}
}

// WithMaxSymbolRPS caps accepted signals per symbol per second;
// zero disables the throttle.
func WithMaxSymbolRPS(rps float64) Option {
	return func(p *Processor) { p.maxSymbolRPS = rps }
}

// Processor bridges the bus and the engine: it subscribes to the
// signal channel, enriches each signal from the collaborators, asks
// the engine for a decision and publishes it on the decision channel.
//
// Work runs on a supervised bounded queue + worker pool, so Stop can
// either abandon in-flight work (Stop) or await drain (StopAndDrain).
// The intake handler runs as a synchronous bus subscriber and only
// enqueues; a full queue drops the single event and counts it.
type Processor struct {
	bus     *eventbus.Bus
	eng     *engine.Engine
	collab  Collaborators
	lg      *logger.Logger
	metrics repository.Metrics

	quote        string
	workers      int
	queueSize    int
	maxSymbolRPS float64
	limiter      *ratelimit.Limiter

	mu      sync.Mutex
	running bool
	sub     *eventbus.Subscription
	queue   chan *models.Event
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	circuitMu sync.RWMutex
	circuit   string
	positions map[string]float64

	processed uint64
	failed    uint64
	throttled uint64
}

// New creates a processor. It does not subscribe until Start.
func New(bus *eventbus.Bus, eng *engine.Engine, collab Collaborators, lg *logger.Logger, m repository.Metrics, opts ...Option) *Processor {
	p := &Processor{
		bus:       bus,
		eng:       eng,
		collab:    collab,
		lg:        lg,
		metrics:   m,
		quote:     "USDT",
		workers:   4,
		queueSize: 256,
		limiter:   ratelimit.New(),
		circuit:   models.CircuitClosed,
		positions: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes to the signal channel and launches the worker pool.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("processor: already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.queue = make(chan *models.Event, p.queueSize)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.sub = p.bus.Subscribe([]models.ChannelType{models.ChannelSignal}, p.intake)
	p.lg.Info("processor: started", logger.Int("workers", p.workers), logger.Int("queue", p.queueSize))
	return nil
}

// Stop unsubscribes and stops accepting new work. Queued and in-flight
// signals keep processing; callers needing a drain barrier use
// StopAndDrain.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.bus.Unsubscribe(p.sub)
	p.sub = nil
	close(p.queue)
	p.lg.Info("processor: stopped accepting signals")
}

// StopAndDrain stops intake and waits for the pool to finish queued
// work, up to the context deadline.
func (p *Processor) StopAndDrain(ctx context.Context) error {
	p.Stop()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.cancel() // give up on in-flight collaborator calls
		return fmt.Errorf("processor: drain: %w", ctx.Err())
	}
}

// intake is the synchronous bus handler: validate, throttle, enqueue.
// It must stay non-blocking because it runs under the bus lock.
func (p *Processor) intake(e *models.Event) {
	if p.maxSymbolRPS > 0 {
		if sym, _ := e.PayloadMap()["symbol"].(string); sym != "" {
			if !p.limiter.Allow(engine.NormalizeSymbol(sym), p.maxSymbolRPS, p.maxSymbolRPS) {
				atomic.AddUint64(&p.throttled, 1)
				p.metrics.RecordError("processor_throttle")
				return
			}
		}
	}
	select {
	case p.queue <- e:
	default:
		atomic.AddUint64(&p.failed, 1)
		p.metrics.RecordError("processor_queue_full")
		p.lg.Warn("processor: queue full, dropping signal", logger.String("event_id", e.ID))
	}
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for e := range p.queue {
		p.handle(e)
	}
}

// handle is the top of one unit of work: a panic here drops the single
// event and counts it. It is never retried and never fatal to the pool.
func (p *Processor) handle(e *models.Event) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&p.failed, 1)
			p.metrics.RecordError("processor_panic")
			p.lg.Error("processor: dropped signal after panic",
				logger.String("event_id", e.ID), logger.Any("panic", r))
		}
	}()

	sig, err := signalFromEvent(e)
	if err != nil {
		atomic.AddUint64(&p.failed, 1)
		p.metrics.RecordError("processor_decode")
		p.lg.Warn("processor: undecodable signal payload", logger.String("event_id", e.ID), logger.Error(err))
		return
	}

	dec, err := p.ProcessSignal(p.ctx, sig)
	if err != nil {
		atomic.AddUint64(&p.failed, 1)
		p.metrics.RecordError("processor_process")
		p.lg.Error("processor: signal dropped", logger.String("signal_id", sig.ID), logger.Error(err))
		return
	}

	if _, err := p.bus.PublishAsync(models.ChannelDecision, dec, "signal_processor"); err != nil {
		p.metrics.RecordError("processor_publish")
		p.lg.Error("processor: publish decision failed", logger.String("signal_id", dec.SignalID), logger.Error(err))
	}
}

// ProcessSignal enriches one signal, evaluates it and returns the
// decision. Collaborator failures degrade to safe defaults (regime →
// ranging, anomaly → 0.0, prediction → 0.5, news → 0.0) instead of
// propagating: this layer is fail-open on collaborator unavailability,
// underneath the engine's fail-closed policy.
func (p *Processor) ProcessSignal(ctx context.Context, sig *models.Signal) (*models.Decision, error) {
	if sig == nil || sig.Symbol == "" {
		return nil, fmt.Errorf("signal missing symbol")
	}

	start := time.Now()
	symbol := p.qualifySymbol(sig.Symbol)
	sig.Symbol = symbol
	if sig.ID == "" {
		sig.ID = fmt.Sprintf("sig:%s:%d", symbol, time.Now().UnixNano())
	}

	sc := &models.SignalContext{
		SignalID:        sig.ID,
		Symbol:          symbol,
		Direction:       sig.Direction,
		Price:           p.resolvePrice(ctx, sig),
		DeltaPct:        sig.DeltaPct,
		Volume24h:       sig.Volume24h,
		CircuitState:    p.CircuitState(),
		ActivePositions: p.ActivePositions(),
	}
	p.enrich(ctx, sig, sc)

	dec := p.eng.Evaluate(sc)

	if dec.Action == models.ActionBuy && p.collab.Outcome != nil {
		// Best effort: outcome tracking never blocks or fails a decision.
		if trackingID, err := p.collab.Outcome.Register(ctx, sig, dec); err != nil {
			p.metrics.RecordError("outcome_register")
			p.lg.Warn("processor: outcome registration failed", logger.String("signal_id", sig.ID), logger.Error(err))
		} else {
			p.lg.Debug("processor: outcome registered",
				logger.String("signal_id", sig.ID), logger.String("tracking_id", trackingID))
		}
	}

	atomic.AddUint64(&p.processed, 1)
	p.metrics.RecordLatency("process_signal", time.Since(start).Seconds())
	return dec, nil
}

// resolvePrice asks the price feed and falls back to the signal's own
// reported price when the feed is unavailable. The fallback makes this
// layer fail-open by design; the feed itself stays fail-closed.
func (p *Processor) resolvePrice(ctx context.Context, sig *models.Signal) float64 {
	if p.collab.Price == nil {
		return sig.Price
	}
	price, err := p.collab.Price.Price(ctx, sig.Symbol)
	if err != nil || price <= 0 {
		if err != nil {
			p.metrics.RecordError("pricefeed")
			p.lg.Debug("processor: price feed unavailable, using signal price",
				logger.String("symbol", sig.Symbol), logger.Error(err))
		}
		return sig.Price
	}
	p.metrics.RecordLastPrice(sig.Symbol, price)
	return price
}

func (p *Processor) enrich(ctx context.Context, sig *models.Signal, sc *models.SignalContext) {
	if p.collab.Regime != nil {
		if regime, err := p.collab.Regime.CurrentRegime(ctx, sig.Symbol); err != nil {
			p.collabDegraded("regime", sig.Symbol, err)
			sc.Regime = models.RegimeRanging
		} else {
			sc.Regime = regime
		}
	}
	if p.collab.Anomaly != nil {
		if score, err := p.collab.Anomaly.AnomalyScore(ctx, sig.Symbol); err != nil {
			p.collabDegraded("anomaly", sig.Symbol, err)
			sc.AnomalyScore = models.Float(0.0)
		} else {
			sc.AnomalyScore = models.Float(score)
		}
	}
	if p.collab.Predictor != nil {
		if prob, err := p.collab.Predictor.Predict(ctx, sig); err != nil {
			p.collabDegraded("prediction", sig.Symbol, err)
			sc.PredictionProb = models.Float(0.5)
		} else {
			sc.PredictionProb = models.Float(prob)
		}
	}
	if p.collab.Sentiment != nil {
		if score, err := p.collab.Sentiment.Sentiment(ctx, baseAsset(sig.Symbol, p.quote)); err != nil {
			p.collabDegraded("news", sig.Symbol, err)
			sc.NewsScore = models.Float(0.0)
		} else {
			sc.NewsScore = models.Float(score)
		}
	}
}

func (p *Processor) collabDegraded(kind, symbol string, err error) {
	p.metrics.RecordError("collab_" + kind)
	p.lg.Debug("processor: collaborator degraded to default",
		logger.String("collaborator", kind), logger.String("symbol", symbol), logger.Error(err))
}

// UpdateCircuitState sets the circuit value carried into every context.
// The transition policy lives outside this core.
func (p *Processor) UpdateCircuitState(state string) {
	p.circuitMu.Lock()
	p.circuit = state
	p.circuitMu.Unlock()
	p.lg.Info("processor: circuit state", logger.String("state", state))
}

// CircuitState returns the current circuit value.
func (p *Processor) CircuitState() string {
	p.circuitMu.RLock()
	defer p.circuitMu.RUnlock()
	return p.circuit
}

// AddPosition records an open position for the symbol.
func (p *Processor) AddPosition(symbol string, entryPrice float64) {
	p.circuitMu.Lock()
	p.positions[engine.NormalizeSymbol(symbol)] = entryPrice
	p.circuitMu.Unlock()
}

// RemovePosition clears the symbol's open position.
func (p *Processor) RemovePosition(symbol string) {
	p.circuitMu.Lock()
	delete(p.positions, engine.NormalizeSymbol(symbol))
	p.circuitMu.Unlock()
}

// ActivePositions counts currently open positions.
func (p *Processor) ActivePositions() int {
	p.circuitMu.RLock()
	defer p.circuitMu.RUnlock()
	return len(p.positions)
}

// Stats is the processor observability snapshot.
type Stats struct {
	Running         bool   `json:"running"`
	Processed       uint64 `json:"processed"`
	Failed          uint64 `json:"failed"`
	Throttled       uint64 `json:"throttled"`
	QueueDepth      int    `json:"queue_depth"`
	ActivePositions int    `json:"active_positions"`
	CircuitState    string `json:"circuit_state"`
}

// Stats snapshots counters and queue depth.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	running := p.running
	depth := 0
	if p.queue != nil {
		depth = len(p.queue)
	}
	p.mu.Unlock()
	return Stats{
		Running:         running,
		Processed:       atomic.LoadUint64(&p.processed),
		Failed:          atomic.LoadUint64(&p.failed),
		Throttled:       atomic.LoadUint64(&p.throttled),
		QueueDepth:      depth,
		ActivePositions: p.ActivePositions(),
		CircuitState:    p.CircuitState(),
	}
}

func (p *Processor) qualifySymbol(symbol string) string {
	s := engine.NormalizeSymbol(symbol)
	if p.quote != "" && !strings.HasSuffix(s, p.quote) {
		s += p.quote
	}
	return s
}

func baseAsset(symbol, quote string) string {
	if quote != "" && strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
		return strings.TrimSuffix(symbol, quote)
	}
	return symbol
}

func signalFromEvent(e *models.Event) (*models.Signal, error) {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("re-marshal payload: %w", err)
	}
	var sig models.Signal
	if err := json.Unmarshal(b, &sig); err != nil {
		return nil, fmt.Errorf("decode signal: %w", err)
	}
	if sig.ID == "" {
		// fall back to the envelope identity so the audit trail links up
		sig.ID = e.ID
	}
	return &sig, nil
}
