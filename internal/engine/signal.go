package engine

import (
	talib "github.com/markcheno/go-talib"

	"SpectreGate/internal/domain/models"
)

// SignalConfig carries the regime-specific signal parameters.
type SignalConfig struct {
	ArmLong              bool
	ArmShort             bool
	TrendLookback        int
	UseCloseConfirmation bool
	UseRangeExpansion    bool
	RangeExpansionMult   float64
	MeanEmaLen           int
	MeanAtrLen           int
	MeanAtrMult          float64
	TickSize             float64
}

// SignalGenerator derives a directional trade intent from the latest
// classified regime and a short rolling window of price history. It holds
// no state beyond that window; the regime arrives fresh each bar.
type SignalGenerator struct {
	cfg SignalConfig

	highs  []float64
	lows   []float64
	closes []float64
	keep   int
}

// NewSignalGenerator builds a generator; degenerate lengths are clamped.
func NewSignalGenerator(cfg SignalConfig) *SignalGenerator {
	if cfg.TrendLookback < 1 {
		cfg.TrendLookback = 1
	}
	if cfg.MeanEmaLen < 2 {
		cfg.MeanEmaLen = 2
	}
	if cfg.MeanAtrLen < 1 {
		cfg.MeanAtrLen = 1
	}
	if cfg.RangeExpansionMult <= 0 {
		cfg.RangeExpansionMult = 1.0
	}
	keep := cfg.MeanEmaLen
	if cfg.MeanAtrLen+1 > keep {
		keep = cfg.MeanAtrLen + 1
	}
	if cfg.TrendLookback+1 > keep {
		keep = cfg.TrendLookback + 1
	}
	// triple headroom keeps EMA seeding stable across the trimmed window
	return &SignalGenerator{cfg: cfg, keep: keep * 3}
}

// Observe appends one completed bar to the rolling window. Call exactly
// once per processed bar, before Evaluate.
func (g *SignalGenerator) Observe(bar *models.BarSnapshot) {
	g.highs = append(g.highs, bar.High)
	g.lows = append(g.lows, bar.Low)
	g.closes = append(g.closes, bar.Close)
	if len(g.closes) > g.keep {
		drop := len(g.closes) - g.keep
		g.highs = g.highs[drop:]
		g.lows = g.lows[drop:]
		g.closes = g.closes[drop:]
	}
}

// Evaluate derives the intent for the most recently observed bar. Long wins
// deterministically when both directions fire on the same bar.
func (g *SignalGenerator) Evaluate(regime models.Regime) models.TradeIntent {
	n := len(g.closes)
	if n < 2 {
		return models.TradeIntent{Direction: models.DirectionNone}
	}

	var dir models.Direction
	switch regime {
	case models.RegimeTrending:
		dir = g.trendIntent()
	case models.RegimeMeanReverting:
		dir = g.meanRevertIntent()
	default:
		dir = models.DirectionNone
	}

	return models.TradeIntent{Direction: dir, ReferencePrice: g.closes[n-1]}
}

// trendIntent: breakout past the rolling extreme of the prior lookback bars
// by at least one tick, optionally confirmed by close and by range expansion.
func (g *SignalGenerator) trendIntent() models.Direction {
	n := len(g.closes)
	lb := g.cfg.TrendLookback
	if n < lb+1 {
		return models.DirectionNone
	}

	hh := talib.Max(g.highs[:n-1], lb)[n-2]
	ll := talib.Min(g.lows[:n-1], lb)[n-2]

	refHigh := g.highs[n-1]
	refLow := g.lows[n-1]
	if g.cfg.UseCloseConfirmation {
		refHigh = g.closes[n-1]
		refLow = g.closes[n-1]
	}

	if g.cfg.UseRangeExpansion && !g.rangeExpanded() {
		return models.DirectionNone
	}

	return breakoutDirection(refHigh, refLow, hh, ll, g.cfg.TickSize, g.cfg.ArmLong, g.cfg.ArmShort)
}

func (g *SignalGenerator) rangeExpanded() bool {
	n := len(g.closes)
	lb := g.cfg.TrendLookback
	if n < lb+1 {
		return false
	}
	ranges := make([]float64, n)
	for i := range ranges {
		ranges[i] = g.highs[i] - g.lows[i]
	}
	avg := talib.Sma(ranges[:n-1], lb)[n-2]
	cur := ranges[n-1]
	return cur >= avg*g.cfg.RangeExpansionMult
}

// meanRevertIntent: edge-triggered re-entry into the EMA +/- ATR*mult band.
func (g *SignalGenerator) meanRevertIntent() models.Direction {
	n := len(g.closes)
	if n < g.cfg.MeanEmaLen || n < g.cfg.MeanAtrLen+1 {
		return models.DirectionNone
	}

	ema := talib.Ema(g.closes, g.cfg.MeanEmaLen)[n-1]
	atr := talib.Atr(g.highs, g.lows, g.closes, g.cfg.MeanAtrLen)[n-1]
	dev := atr * g.cfg.MeanAtrMult

	return bandCrossDirection(g.closes[n-2], g.closes[n-1], ema-dev, ema+dev, g.cfg.ArmLong, g.cfg.ArmShort)
}

// breakoutDirection applies the tick-confirmed breakout rule. Long takes
// priority when both sides fire.
func breakoutDirection(refHigh, refLow, hh, ll, tick float64, armLong, armShort bool) models.Direction {
	if armLong && refHigh >= hh+tick {
		return models.DirectionLong
	}
	if armShort && refLow <= ll-tick {
		return models.DirectionShort
	}
	return models.DirectionNone
}

// bandCrossDirection fires only on the bar that crosses the band boundary:
// a close already inside the band does not re-trigger.
func bandCrossDirection(prevClose, close, lower, upper float64, armLong, armShort bool) models.Direction {
	if armLong && prevClose < lower && close >= lower {
		return models.DirectionLong
	}
	if armShort && prevClose > upper && close <= upper {
		return models.DirectionShort
	}
	return models.DirectionNone
}
