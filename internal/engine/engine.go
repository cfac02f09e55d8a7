package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"SpectreGate/internal/domain/models"
	"SpectreGate/internal/domain/repository"
	"SpectreGate/internal/service/inference"
	"SpectreGate/pkg/config"
	"SpectreGate/pkg/logger"
	"SpectreGate/pkg/util"
)

// Engine runs the per-bar decision loop: consult the inference service,
// derive an intent, pass it through the execution gate, and route orders.
// All bar processing is single-threaded; Status is safe to call from the
// API goroutines.
type Engine struct {
	cfg    *config.Config
	logger *logger.Logger

	link      repository.InferenceLink
	stream    repository.BarStream
	router    repository.OrderRouter
	positions repository.PositionSource
	journal   repository.Journal
	publisher repository.Publisher
	riskStore repository.RiskStore
	metrics   repository.Metrics

	clock   *SessionClock
	risk    *RiskTracker
	signals *SignalGenerator
	plotter *LevelPlotter

	mu       sync.RWMutex
	state    models.InferenceState
	lastSig  string
	barIndex int
	barTime  time.Time
	halted   bool // set past flatten time, cleared on session rollover
}

// New wires an engine from its collaborators. Session clock, risk tracker,
// signal generator and plotter are built here from the config.
func New(
	cfg *config.Config,
	l *logger.Logger,
	link repository.InferenceLink,
	stream repository.BarStream,
	router repository.OrderRouter,
	positions repository.PositionSource,
	cal repository.SessionCalendar,
	surface repository.DrawSurface,
	journal repository.Journal,
	publisher repository.Publisher,
	riskStore repository.RiskStore,
	metrics repository.Metrics,
) *Engine {
	clock := NewSessionClock(cal, SessionClockConfig{
		UseTradeWindow:       cfg.Session.UseTradeWindow,
		TradeStart:           cfg.Session.TradeStart,
		TradeEnd:             cfg.Session.TradeEnd,
		FlattenTime:          cfg.Session.FlattenTime,
		UseDailyPause:        cfg.Session.UseDailyPause,
		FlattenMinsBeforeEnd: cfg.Session.FlattenMinsBeforeEnd,
		ResumeMinsAfterStart: cfg.Session.ResumeMinsAfterStart,
	}, l)

	signals := NewSignalGenerator(SignalConfig{
		ArmLong:              cfg.Trading.ArmLong,
		ArmShort:             cfg.Trading.ArmShort,
		TrendLookback:        cfg.Signals.TrendLookback,
		UseCloseConfirmation: cfg.Signals.UseCloseConfirmation,
		UseRangeExpansion:    cfg.Signals.UseRangeExpansion,
		RangeExpansionMult:   cfg.Signals.RangeExpansionMult,
		MeanEmaLen:           cfg.Signals.MeanEmaLen,
		MeanAtrLen:           cfg.Signals.MeanAtrLen,
		MeanAtrMult:          cfg.Signals.MeanAtrMult,
		TickSize:             cfg.Trading.TickSize,
	})

	var plotter *LevelPlotter
	if cfg.Visual.PlotLevels {
		plotter = NewLevelPlotter(surface, cfg.Visual.LevelLineBars, cfg.Visual.MaxPlottedSignals)
	}

	return &Engine{
		cfg:       cfg,
		logger:    l,
		link:      link,
		stream:    stream,
		router:    router,
		positions: positions,
		journal:   journal,
		publisher: publisher,
		riskStore: riskStore,
		metrics:   metrics,
		clock:     clock,
		risk:      NewRiskTracker(cfg.Risk.CooldownBars, cfg.Risk.MaxTradesPerSession),
		signals:   signals,
		plotter:   plotter,
		state:     models.InitialInferenceState(),
	}
}

// Start restores persisted risk state, connects the bar stream and launches
// the consume loop.
func (e *Engine) Start(ctx context.Context) error {
	if e.riskStore != nil {
		snap, err := e.riskStore.Load(ctx, e.cfg.Symbol)
		if err != nil {
			e.logger.Warn("risk snapshot load failed", logger.Error(err))
		} else if snap != nil {
			e.risk.Restore(snap)
			e.logger.Info("risk snapshot restored",
				logger.String("session_date", snap.SessionDate),
				logger.Int("trades", snap.Trades))
		}
	}

	if err := e.stream.Connect(ctx); err != nil {
		return err
	}
	barCh, errCh := e.stream.Read(ctx)
	go e.consume(ctx, barCh, errCh)
	return nil
}

func (e *Engine) consume(ctx context.Context, barCh <-chan *models.BarSnapshot, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, open := <-errCh:
			if err != nil {
				e.metrics.RecordError("stream")
				e.logger.Warn("bar stream error", logger.Error(err))
			}
			if open && err == nil {
				continue
			}
			// The stream tears down both channels after a read fault.
			if barCh, errCh = e.resumeStream(ctx); barCh == nil {
				return
			}
		case bar, open := <-barCh:
			if !open {
				if barCh, errCh = e.resumeStream(ctx); barCh == nil {
					return
				}
				continue
			}
			if bar == nil {
				continue
			}
			e.OnBar(ctx, bar)
		}
	}
}

// resumeStream redials the host and reopens the bar channels. It keeps
// retrying until the dial succeeds or the context ends; Reconnect waits
// its configured delay between attempts.
func (e *Engine) resumeStream(ctx context.Context) (<-chan *models.BarSnapshot, <-chan error) {
	for ctx.Err() == nil {
		if err := e.stream.Reconnect(ctx); err != nil {
			e.metrics.RecordError("stream")
			e.logger.Warn("bar stream reconnect failed", logger.Error(err))
			continue
		}
		e.logger.Info("bar stream resumed")
		barCh, errCh := e.stream.Read(ctx)
		return barCh, errCh
	}
	return nil, nil
}

// OnBar processes one bar event end to end.
func (e *Engine) OnBar(ctx context.Context, bar *models.BarSnapshot) {
	start := time.Now()
	defer func() { e.metrics.RecordLatency("on_bar", time.Since(start).Seconds()) }()

	e.mu.Lock()
	e.barIndex = bar.Index
	e.barTime = bar.Time
	e.mu.Unlock()

	if bar.Index < e.cfg.ML.WarmupBars {
		return
	}

	if e.risk.ResetIfNewDay(bar.Time) {
		e.mu.Lock()
		e.halted = false
		e.mu.Unlock()
		win := e.clock.Window(bar.Time)
		e.logger.Info("session counters reset",
			logger.String("date", util.DateKey(bar.Time)),
			logger.Time("session_begin", win.Begin),
			logger.Time("session_end", win.End))
	}

	if e.clock.PastFlattenTime(bar.Time) {
		e.haltAndFlatten(ctx, "Flatten")
		return
	}
	if e.clock.InDailyPause(bar.Time) {
		e.flattenIfOpen(ctx, "DailyPauseFlatten")
		return
	}

	// Flatten and pause checks above run on every tick. Everything below
	// happens once per bar, on its first tick.
	if !bar.FirstTick {
		return
	}

	e.link.ConnectIfNeeded(ctx)

	e.signals.Observe(bar)
	if e.shouldQuery(bar.Index) {
		e.queryInference(bar)
	}

	state := e.State()
	intent := e.signals.Evaluate(state.Regime)
	decision := e.gate(bar, state, intent)

	e.record(ctx, bar, state, intent, decision)
}

func (e *Engine) shouldQuery(barIndex int) bool {
	n := e.cfg.ML.SendEveryNBars
	if n <= 1 {
		return true
	}
	return barIndex%n == 0
}

func (e *Engine) queryInference(bar *models.BarSnapshot) {
	msg := inference.BuildRequest(bar, time.Now())

	start := time.Now()
	line, ok := e.link.Exchange(msg)
	e.metrics.RecordLatency("inference_exchange", time.Since(start).Seconds())
	if !ok {
		return
	}

	prior := e.State()
	next, updated := inference.ApplyResponse(line, prior, e.cfg.ML.SecondaryStrictParse)
	if !updated && next == prior {
		// malformed or empty line, nothing new to fold in
		e.metrics.RecordError("inference_parse")
		return
	}

	e.mu.Lock()
	e.state = next
	sig := next.Signature()
	logIt := sig != e.lastSig
	e.lastSig = sig
	e.mu.Unlock()

	e.metrics.RecordRegime(bar.Symbol, string(next.Regime), next.Confidence)
	if logIt {
		e.logger.Info("regime update",
			logger.String("symbol", bar.Symbol),
			logger.String("regime", string(next.Regime)),
			logger.Float64("confidence", next.Confidence),
			logger.Bool("reject", next.Reject),
			logger.Bool("secondary_pass", next.SecondaryPass),
			logger.Float64("secondary_prob", next.SecondaryProb))
	}
}

// gate evaluates every independent entry constraint for this bar. All
// violated constraints are reported, not just the first.
func (e *Engine) gate(bar *models.BarSnapshot, state models.InferenceState, intent models.TradeIntent) models.GateDecision {
	var reasons []string

	if !e.clock.InTradeWindow(bar.Time) {
		reasons = append(reasons, "trade_window")
	}
	if !e.risk.CooldownSatisfied(bar.Index) {
		reasons = append(reasons, "cooldown")
	}
	if e.risk.CapReached() {
		reasons = append(reasons, "session_cap")
	}
	if state.Reject {
		reasons = append(reasons, "reject")
	}
	if state.Confidence < e.cfg.ML.MinConfidence {
		reasons = append(reasons, "confidence")
	}
	if e.cfg.ML.UseSecondaryFilter {
		if !state.SecondaryPass || state.SecondaryProb < e.cfg.ML.SecondaryMinProb {
			reasons = append(reasons, "secondary")
		}
	}

	if len(reasons) > 0 {
		return models.GateDecision{Permitted: false, Reason: strings.Join(reasons, ",")}
	}
	if intent.None() {
		return models.GateDecision{Permitted: true, Reason: "no_signal"}
	}
	return models.GateDecision{Permitted: true}
}

// record executes a permitted intent and journals the bar outcome.
func (e *Engine) record(ctx context.Context, bar *models.BarSnapshot, state models.InferenceState, intent models.TradeIntent, decision models.GateDecision) {
	submitted := false
	qty := 0

	actionable := decision.Permitted && !intent.None() && e.positions.Position() == models.PositionFlat
	if actionable {
		if e.plotter != nil {
			e.plotter.Plot(intent.Direction, intent.ReferencePrice, bar.Index,
				e.cfg.Trading.StopLossTicks, e.cfg.Trading.TakeProfitTicks, e.cfg.Trading.TickSize)
		}
		if e.cfg.Trading.Enabled {
			qty = util.ClampInt(e.cfg.Trading.Qty, 1, e.cfg.Trading.MaxQty)
			submitted = e.submit(ctx, bar, intent.Direction, qty)
		}
	}

	outcome := "blocked"
	switch {
	case submitted:
		outcome = "submitted"
	case actionable:
		outcome = "signal"
	case decision.Permitted:
		outcome = "idle"
	}
	e.metrics.RecordDecision(bar.Symbol, outcome)

	ev := &models.DecisionEvent{
		Symbol:        bar.Symbol,
		BarTime:       bar.Time,
		BarIndex:      bar.Index,
		Regime:        string(state.Regime),
		Confidence:    state.Confidence,
		Reject:        state.Reject,
		SecondaryPass: state.SecondaryPass,
		SecondaryProb: state.SecondaryProb,
		Intent:        string(intent.Direction),
		Permitted:     decision.Permitted,
		Submitted:     submitted,
		Qty:           qty,
		Reason:        decision.Reason,
	}

	if e.journal != nil {
		if err := e.journal.Record(ctx, ev); err != nil {
			e.metrics.RecordError("journal")
			e.logger.Warn("journal write failed", logger.Error(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.metrics.RecordError("publish")
			e.logger.Warn("event publish failed", logger.Error(err))
		}
	}
}

// submit routes the entry and, on success, counts it toward the session
// limits and persists the risk snapshot.
func (e *Engine) submit(ctx context.Context, bar *models.BarSnapshot, dir models.Direction, qty int) bool {
	var err error
	var label string
	switch dir {
	case models.DirectionLong:
		label = "ML_Long"
		err = e.router.EnterLong(ctx, qty, label)
	case models.DirectionShort:
		label = "ML_Short"
		err = e.router.EnterShort(ctx, qty, label)
	default:
		return false
	}
	if err != nil {
		e.metrics.RecordError("order")
		e.logger.Error("order submission failed",
			logger.String("direction", string(dir)),
			logger.Error(err))
		return false
	}

	e.risk.RecordEntry(bar.Index)
	e.persistRisk(ctx)
	e.metrics.RecordOrder(bar.Symbol, string(dir))
	e.logger.Info("entry submitted",
		logger.String("symbol", bar.Symbol),
		logger.String("label", label),
		logger.Int("qty", qty),
		logger.Float64("price", bar.Close),
		logger.Int("session_trades", e.risk.Trades()))
	return true
}

func (e *Engine) haltAndFlatten(ctx context.Context, label string) {
	e.mu.Lock()
	already := e.halted
	e.halted = true
	e.mu.Unlock()

	e.flattenIfOpen(ctx, label)
	if !already {
		e.logger.Info("trading halted for session", logger.String("label", label))
	}
}

func (e *Engine) flattenIfOpen(ctx context.Context, label string) {
	if e.positions.Position() == models.PositionFlat {
		return
	}
	if err := e.router.FlattenAll(ctx, label); err != nil {
		e.metrics.RecordError("order")
		e.logger.Error("flatten failed", logger.String("label", label), logger.Error(err))
		return
	}
	e.logger.Info("position flattened", logger.String("label", label))
}

func (e *Engine) persistRisk(ctx context.Context) {
	if e.riskStore == nil {
		return
	}
	if err := e.riskStore.Save(ctx, e.cfg.Symbol, e.risk.Snapshot()); err != nil {
		e.metrics.RecordError("risk_store")
		e.logger.Warn("risk snapshot save failed", logger.Error(err))
	}
}

// State returns the current inference state.
func (e *Engine) State() models.InferenceState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Status assembles the externally observable engine state.
func (e *Engine) Status() *models.EngineStatus {
	e.mu.RLock()
	state := e.state
	barIndex := e.barIndex
	barTime := e.barTime
	e.mu.RUnlock()

	return &models.EngineStatus{
		Symbol:        e.cfg.Symbol,
		Regime:        string(state.Regime),
		Confidence:    state.Confidence,
		Reject:        state.Reject,
		SecondaryPass: state.SecondaryPass,
		SecondaryProb: state.SecondaryProb,
		Trades:        e.risk.Trades(),
		LastEntryBar:  e.risk.LastEntryBar(),
		BarIndex:      barIndex,
		BarTime:       barTime,
		Position:      string(e.positions.Position()),
		LinkConnected: e.link.IsConnected(),
		FeedConnected: e.stream.IsConnected(),
	}
}

// IsConnected reports whether the bar stream is connected.
func (e *Engine) IsConnected() bool { return e.stream.IsConnected() }

// Shutdown flattens nothing, persists risk state and closes the stream and
// the inference link. Open positions are left to the host's own protection.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.persistRisk(ctx)
	if e.plotter != nil {
		e.plotter.Clear()
	}
	_ = e.link.Close()
	return e.stream.Close()
}
