package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"SpectreGate/internal/domain/models"
	"SpectreGate/pkg/config"
)

// --- fakes ---

type fakeLink struct {
	response  string
	connected bool
	exchanges int
}

func (l *fakeLink) ConnectIfNeeded(context.Context) { l.connected = true }
func (l *fakeLink) Exchange(string) (string, bool) {
	l.exchanges++
	if l.response == "" {
		return "", false
	}
	return l.response, true
}
func (l *fakeLink) IsConnected() bool { return l.connected }
func (l *fakeLink) Close() error      { return nil }

type fakeStream struct {
	mu    sync.Mutex
	reads int
	barCh chan *models.BarSnapshot
	errCh chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{}
}

func (s *fakeStream) Connect(context.Context) error { return nil }

// Read hands out fresh channels per call, like the bridge does.
func (s *fakeStream) Read(context.Context) (<-chan *models.BarSnapshot, <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	s.barCh = make(chan *models.BarSnapshot, 8)
	s.errCh = make(chan error, 8)
	return s.barCh, s.errCh
}

func (s *fakeStream) readCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *fakeStream) channels() (chan *models.BarSnapshot, chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.barCh, s.errCh
}

func (s *fakeStream) Reconnect(context.Context) error { return nil }
func (s *fakeStream) Close() error                    { return nil }
func (s *fakeStream) IsConnected() bool               { return true }

type fakeRouter struct {
	longs    int
	shorts   int
	flattens int
	qtys     []int
	labels   []string
	err      error
}

func (r *fakeRouter) EnterLong(_ context.Context, qty int, label string) error {
	if r.err != nil {
		return r.err
	}
	r.longs++
	r.qtys = append(r.qtys, qty)
	r.labels = append(r.labels, label)
	return nil
}

func (r *fakeRouter) EnterShort(_ context.Context, qty int, label string) error {
	if r.err != nil {
		return r.err
	}
	r.shorts++
	r.qtys = append(r.qtys, qty)
	r.labels = append(r.labels, label)
	return nil
}

func (r *fakeRouter) FlattenAll(_ context.Context, label string) error {
	if r.err != nil {
		return r.err
	}
	r.flattens++
	r.labels = append(r.labels, label)
	return nil
}

type fakePosition struct {
	state models.PositionState
}

func (p *fakePosition) Position() models.PositionState {
	if p.state == "" {
		return models.PositionFlat
	}
	return p.state
}

type fakeJournal struct {
	mu     sync.Mutex
	events []*models.DecisionEvent
	err    error
}

func (j *fakeJournal) Init(context.Context) error { return nil }
func (j *fakeJournal) Record(_ context.Context, ev *models.DecisionEvent) error {
	if j.err != nil {
		return j.err
	}
	j.mu.Lock()
	j.events = append(j.events, ev)
	j.mu.Unlock()
	return nil
}
func (j *fakeJournal) Recent(context.Context, string, int) ([]*models.DecisionEvent, error) {
	return j.events, nil
}
func (j *fakeJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.events)
}
func (j *fakeJournal) Health(context.Context) error { return nil }
func (j *fakeJournal) Close() error                 { return nil }

type fakePublisher struct {
	events []*models.DecisionEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev *models.DecisionEvent) error {
	p.events = append(p.events, ev)
	return nil
}
func (p *fakePublisher) PublishMessage(context.Context, string, interface{}) error { return nil }
func (p *fakePublisher) Close() error                                              { return nil }

type fakeRiskStore struct {
	loaded *models.RiskSnapshot
	saved  *models.RiskSnapshot
}

func (s *fakeRiskStore) Load(context.Context, string) (*models.RiskSnapshot, error) {
	return s.loaded, nil
}
func (s *fakeRiskStore) Save(_ context.Context, _ string, snap *models.RiskSnapshot) error {
	s.saved = snap
	return nil
}
func (s *fakeRiskStore) Close() error { return nil }

type fakeMetrics struct {
	decisions map[string]int
	orders    int
	errors    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{decisions: make(map[string]int), errors: make(map[string]int)}
}

func (m *fakeMetrics) RecordDecision(_, outcome string)   { m.decisions[outcome]++ }
func (m *fakeMetrics) RecordOrder(_, _ string)            { m.orders++ }
func (m *fakeMetrics) RecordRegime(_, _ string, _ float64) {}
func (m *fakeMetrics) RecordError(kind string)            { m.errors[kind]++ }
func (m *fakeMetrics) RecordLatency(string, float64)      {}

// --- fixture ---

const passingResponse = `{"regime":"TRENDING","conf":0.9,"reject":false,"xgb_pass":true,"xgb_prob":0.8}`

type engineFixture struct {
	cfg     *config.Config
	link    *fakeLink
	stream  *fakeStream
	router  *fakeRouter
	pos     *fakePosition
	surface *fakeSurface
	journal *fakeJournal
	pub     *fakePublisher
	store   *fakeRiskStore
	metrics *fakeMetrics
	eng     *Engine
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Symbol = "MNQ"
	cfg.ML.SendEveryNBars = 1
	cfg.ML.MinConfidence = 0.60
	cfg.ML.SecondaryMinProb = 0.55
	cfg.Trading.Enabled = true
	cfg.Trading.ArmLong = true
	cfg.Trading.ArmShort = true
	cfg.Trading.Qty = 1
	cfg.Trading.MaxQty = 3
	cfg.Trading.StopLossTicks = 80
	cfg.Trading.TakeProfitTicks = 120
	cfg.Trading.TickSize = 0.25
	cfg.Session.UseTradeWindow = true
	cfg.Session.TradeStart = 93000
	cfg.Session.TradeEnd = 155000
	cfg.Session.FlattenTime = 155900
	cfg.Session.FlattenMinsBeforeEnd = 15
	cfg.Session.ResumeMinsAfterStart = 15
	cfg.Risk.CooldownBars = 2
	cfg.Risk.MaxTradesPerSession = 50
	cfg.Signals.TrendLookback = 2
	cfg.Signals.MeanEmaLen = 10
	cfg.Signals.MeanAtrLen = 5
	cfg.Signals.MeanAtrMult = 0.6
	cfg.Visual.PlotLevels = true
	cfg.Visual.LevelLineBars = 12
	cfg.Visual.MaxPlottedSignals = 80
	return cfg
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *engineFixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	f := &engineFixture{
		cfg:     cfg,
		link:    &fakeLink{response: passingResponse},
		stream:  newFakeStream(),
		router:  &fakeRouter{},
		pos:     &fakePosition{},
		surface: newFakeSurface(),
		journal: &fakeJournal{},
		pub:     &fakePublisher{},
		store:   &fakeRiskStore{},
		metrics: newFakeMetrics(),
	}

	cal := fixedCalendar{win: models.SessionWindow{
		Begin: time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 3, 16, 0, 0, 0, time.UTC),
	}}

	f.eng = New(cfg, quietLogger(t), f.link, f.stream, f.router, f.pos,
		cal, f.surface, f.journal, f.pub, f.store, f.metrics)
	return f
}

func barAt(idx, hh, mm int, high, low, close float64) *models.BarSnapshot {
	return &models.BarSnapshot{
		Symbol:    "MNQ",
		Time:      time.Date(2025, time.March, 3, hh, mm, 0, 0, time.UTC),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		Index:     idx,
		FirstTick: true,
	}
}

// feedFlat pushes n quiet bars so the signal window has history.
func (f *engineFixture) feedFlat(ctx context.Context, n int) int {
	for i := 0; i < n; i++ {
		f.eng.OnBar(ctx, barAt(i, 10, i, 110, 100, 105))
	}
	return n
}

func lastEvent(t *testing.T, j *fakeJournal) *models.DecisionEvent {
	t.Helper()
	if len(j.events) == 0 {
		t.Fatalf("no journal events recorded")
	}
	return j.events[len(j.events)-1]
}

// --- tests ---

func TestOnBarWarmupSkipsProcessing(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.ML.WarmupBars = 50 })

	f.eng.OnBar(context.Background(), barAt(10, 10, 0, 110, 100, 105))

	if f.link.exchanges != 0 {
		t.Fatalf("inference queried during warmup")
	}
	if len(f.journal.events) != 0 {
		t.Fatalf("journal written during warmup")
	}
}

func TestOnBarSubmitsPermittedBreakout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	if f.router.longs != 1 {
		t.Fatalf("long entries = %d, want 1", f.router.longs)
	}
	if f.router.labels[0] != "ML_Long" {
		t.Fatalf("label = %q, want ML_Long", f.router.labels[0])
	}
	ev := lastEvent(t, f.journal)
	if !ev.Permitted || !ev.Submitted {
		t.Fatalf("event permitted=%v submitted=%v, want both true", ev.Permitted, ev.Submitted)
	}
	if ev.Intent != "long" {
		t.Fatalf("event intent = %q, want long", ev.Intent)
	}
	if f.store.saved == nil || f.store.saved.Trades != 1 {
		t.Fatalf("risk snapshot not persisted after entry: %+v", f.store.saved)
	}
	if len(f.pub.events) == 0 {
		t.Fatalf("decision not published")
	}
	if len(f.surface.levels) != 2 {
		t.Fatalf("levels drawn = %d, want stop and target", len(f.surface.levels))
	}
}

func TestOnBarQtyClampedToMax(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Trading.Qty = 5
		cfg.Trading.MaxQty = 3
	})
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	if len(f.router.qtys) != 1 || f.router.qtys[0] != 3 {
		t.Fatalf("qtys = %v, want [3]", f.router.qtys)
	}
}

func TestOnBarInitialStateBlocks(t *testing.T) {
	f := newFixture(t, nil)
	f.link.response = "" // inference silent, prior no-trade state holds
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	if f.router.longs != 0 {
		t.Fatalf("entry submitted under rejected initial state")
	}
	ev := lastEvent(t, f.journal)
	if ev.Permitted {
		t.Fatalf("gate permitted under rejected initial state")
	}
	for _, want := range []string{"reject", "confidence"} {
		if !strings.Contains(ev.Reason, want) {
			t.Fatalf("reason %q missing %q", ev.Reason, want)
		}
	}
}

func TestOnBarCooldownBlocksNextEntry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))
	if f.router.longs != 1 {
		t.Fatalf("setup entry not submitted")
	}

	// next bar breaks out again but sits inside the cooldown
	f.eng.OnBar(ctx, barAt(idx+1, 10, 11, 110.75, 104, 109))

	if f.router.longs != 1 {
		t.Fatalf("cooldown did not block the second entry")
	}
	ev := lastEvent(t, f.journal)
	if !strings.Contains(ev.Reason, "cooldown") {
		t.Fatalf("reason %q missing cooldown", ev.Reason)
	}
}

func TestOnBarSessionCapBlocks(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Risk.MaxTradesPerSession = 1
		cfg.Risk.CooldownBars = 0
	})
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))
	f.eng.OnBar(ctx, barAt(idx+1, 10, 11, 110.75, 104, 109))

	if f.router.longs != 1 {
		t.Fatalf("long entries = %d, want cap at 1", f.router.longs)
	}
	ev := lastEvent(t, f.journal)
	if !strings.Contains(ev.Reason, "session_cap") {
		t.Fatalf("reason %q missing session_cap", ev.Reason)
	}
}

func TestOnBarSecondaryFilterBlocks(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.ML.UseSecondaryFilter = true })
	f.link.response = `{"regime":"TRENDING","conf":0.9,"reject":false,"xgb_pass":false,"xgb_prob":0.2}`
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	if f.router.longs != 0 {
		t.Fatalf("secondary filter did not block the entry")
	}
	ev := lastEvent(t, f.journal)
	if !strings.Contains(ev.Reason, "secondary") {
		t.Fatalf("reason %q missing secondary", ev.Reason)
	}
}

func TestOnBarSecondaryFilterIgnoredWhenDisabled(t *testing.T) {
	f := newFixture(t, nil) // filter off by default
	f.link.response = `{"regime":"TRENDING","conf":0.9,"reject":false,"xgb_pass":false,"xgb_prob":0.2}`
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	if f.router.longs != 1 {
		t.Fatalf("disabled secondary filter still blocked the entry")
	}
}

func TestOnBarOutsideTradeWindowBlocks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	// 09:15 precedes the 09:30:00 trade start
	bar := barAt(idx, 9, 15, 110.25, 104, 108)
	f.eng.OnBar(ctx, bar)

	if f.router.longs != 0 {
		t.Fatalf("entry submitted outside the trade window")
	}
	ev := lastEvent(t, f.journal)
	if !strings.Contains(ev.Reason, "trade_window") {
		t.Fatalf("reason %q missing trade_window", ev.Reason)
	}
}

func TestOnBarPastFlattenTimeFlattens(t *testing.T) {
	f := newFixture(t, nil)
	f.pos.state = models.PositionLong
	ctx := context.Background()

	f.eng.OnBar(ctx, barAt(100, 15, 59, 110, 100, 105))

	if f.router.flattens != 1 {
		t.Fatalf("flattens = %d, want 1", f.router.flattens)
	}
	if f.router.labels[0] != "Flatten" {
		t.Fatalf("label = %q, want Flatten", f.router.labels[0])
	}
	if len(f.journal.events) != 0 {
		t.Fatalf("bar processed past the flatten time")
	}
}

func TestOnBarDailyPauseFlattens(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Session.UseDailyPause = true
		cfg.Session.UseTradeWindow = false // isolate pause handling
	})
	f.pos.state = models.PositionShort
	ctx := context.Background()

	// 15:50 is inside the final 15 minutes of the 16:00 session
	f.eng.OnBar(ctx, barAt(100, 15, 50, 110, 100, 105))

	if f.router.flattens != 1 {
		t.Fatalf("flattens = %d, want 1", f.router.flattens)
	}
	if f.router.labels[0] != "DailyPauseFlatten" {
		t.Fatalf("label = %q, want DailyPauseFlatten", f.router.labels[0])
	}
}

func TestOnBarFlatPositionSkipsFlatten(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.eng.OnBar(ctx, barAt(100, 15, 59, 110, 100, 105))

	if f.router.flattens != 0 {
		t.Fatalf("flatten routed with no open position")
	}
}

func TestOnBarTradingDisabledStillPlots(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Trading.Enabled = false })
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	if f.router.longs != 0 {
		t.Fatalf("order routed with trading disabled")
	}
	if len(f.surface.levels) != 2 {
		t.Fatalf("dry-run signal did not plot levels")
	}
	ev := lastEvent(t, f.journal)
	if !ev.Permitted || ev.Submitted {
		t.Fatalf("event permitted=%v submitted=%v, want permitted dry-run", ev.Permitted, ev.Submitted)
	}
	if f.metrics.decisions["signal"] != 1 {
		t.Fatalf("decisions = %v, want one signal outcome", f.metrics.decisions)
	}
}

func TestOnBarOpenPositionSuppressesEntry(t *testing.T) {
	f := newFixture(t, nil)
	f.pos.state = models.PositionLong
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	if f.router.longs != 0 {
		t.Fatalf("entry submitted while already positioned")
	}
}

func TestOnBarOrderFailureNotCounted(t *testing.T) {
	f := newFixture(t, nil)
	f.router.err = errors.New("rejected by host")
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	ev := lastEvent(t, f.journal)
	if ev.Submitted {
		t.Fatalf("failed order reported as submitted")
	}
	if f.store.saved != nil {
		t.Fatalf("risk persisted after failed submission")
	}
	if f.metrics.errors["order"] != 1 {
		t.Fatalf("order error not recorded: %v", f.metrics.errors)
	}
}

func TestStatusReflectsEngineState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	f.eng.OnBar(ctx, barAt(idx, 10, 10, 110.25, 104, 108))

	st := f.eng.Status()
	if st.Symbol != "MNQ" {
		t.Fatalf("symbol = %q", st.Symbol)
	}
	if st.Regime != "TRENDING" || st.Reject {
		t.Fatalf("status regime=%q reject=%v, want TRENDING/false", st.Regime, st.Reject)
	}
	if st.Trades != 1 {
		t.Fatalf("status trades = %d, want 1", st.Trades)
	}
	if st.BarIndex != idx {
		t.Fatalf("status bar index = %d, want %d", st.BarIndex, idx)
	}
	if !st.FeedConnected {
		t.Fatalf("feed expected connected")
	}
}

func TestStartRestoresRiskSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.store.loaded = &models.RiskSnapshot{SessionDate: "2025-03-03", Trades: 49, LastEntryBar: 80}

	if err := f.eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.eng.Shutdown(context.Background())

	if f.eng.Status().Trades != 49 {
		t.Fatalf("restored trades = %d, want 49", f.eng.Status().Trades)
	}
}

func TestOnBarIntrabarTicksDoNotResubmit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Risk.CooldownBars = 0 })
	ctx := context.Background()

	idx := f.feedFlat(ctx, 3)
	breakout := barAt(idx, 10, 10, 110.25, 104, 108)
	f.eng.OnBar(ctx, breakout)

	if f.router.longs != 1 {
		t.Fatalf("long entries = %d after first tick, want 1", f.router.longs)
	}
	journaled := len(f.journal.events)

	tick := *breakout
	tick.FirstTick = false
	for i := 0; i < 3; i++ {
		f.eng.OnBar(ctx, &tick)
	}

	if f.router.longs != 1 {
		t.Fatalf("long entries = %d after repeat ticks of the same bar, want 1", f.router.longs)
	}
	if len(f.journal.events) != journaled {
		t.Fatalf("journal grew on intrabar ticks: %d -> %d", journaled, len(f.journal.events))
	}
	if f.link.exchanges != idx+1 {
		t.Fatalf("inference queried on intrabar ticks: %d exchanges", f.link.exchanges)
	}
}

func TestOnBarIntrabarTickStillFlattens(t *testing.T) {
	f := newFixture(t, nil)
	f.pos.state = models.PositionLong

	past := barAt(5, 15, 59, 110, 100, 105)
	past.FirstTick = false
	f.eng.OnBar(context.Background(), past)

	if f.router.flattens != 1 {
		t.Fatalf("flattens = %d, want 1 on intrabar tick past flatten time", f.router.flattens)
	}
	if f.router.labels[0] != "Flatten" {
		t.Fatalf("flatten label = %q, want Flatten", f.router.labels[0])
	}
}

func TestStreamResumesAfterReadError(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.eng.Shutdown(context.Background())

	barCh, errCh := f.stream.channels()
	errCh <- errors.New("socket reset")
	close(errCh)
	close(barCh)

	deadline := time.Now().Add(2 * time.Second)
	for f.stream.readCalls() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("stream not re-read after reconnect: %d Read calls", f.stream.readCalls())
		}
		time.Sleep(5 * time.Millisecond)
	}

	barCh, _ = f.stream.channels()
	barCh <- barAt(0, 10, 0, 110, 100, 105)

	deadline = time.Now().Add(2 * time.Second)
	for f.journal.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no bar processed after stream resume")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
