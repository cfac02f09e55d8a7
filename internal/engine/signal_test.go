package engine

import (
	"testing"

	"SpectreGate/internal/domain/models"
)

func observeBar(g *SignalGenerator, high, low, close float64) {
	g.Observe(&models.BarSnapshot{High: high, Low: low, Close: close})
}

func TestBreakoutDirection(t *testing.T) {
	cases := []struct {
		name    string
		refHigh float64
		refLow  float64
		want    models.Direction
	}{
		{"one tick above rolling high", 110.25, 105, models.DirectionLong},
		{"at rolling high, no tick margin", 110.00, 105, models.DirectionNone},
		{"one tick below rolling low", 105, 89.75, models.DirectionShort},
		{"at rolling low", 105, 90.00, models.DirectionNone},
		{"inside the range", 108, 95, models.DirectionNone},
	}
	for _, tc := range cases {
		got := breakoutDirection(tc.refHigh, tc.refLow, 110, 90, 0.25, true, true)
		if got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestBreakoutDirectionLongPriority(t *testing.T) {
	// both sides pierce on the same bar; long wins deterministically
	got := breakoutDirection(110.25, 89.75, 110, 90, 0.25, true, true)
	if got != models.DirectionLong {
		t.Fatalf("got %q, want long priority", got)
	}
}

func TestBreakoutDirectionArming(t *testing.T) {
	if got := breakoutDirection(110.25, 105, 110, 90, 0.25, false, true); got != models.DirectionNone {
		t.Fatalf("disarmed long fired: %q", got)
	}
	if got := breakoutDirection(105, 89.75, 110, 90, 0.25, true, false); got != models.DirectionNone {
		t.Fatalf("disarmed short fired: %q", got)
	}
}

func TestBandCrossDirection(t *testing.T) {
	lower, upper := 95.0, 105.0
	cases := []struct {
		name      string
		prevClose float64
		close     float64
		want      models.Direction
	}{
		{"re-entry from below", 94, 96, models.DirectionLong},
		{"re-entry lands exactly on lower", 94, 95, models.DirectionLong},
		{"already inside, no retrigger", 96, 97, models.DirectionNone},
		{"still below", 93, 94, models.DirectionNone},
		{"re-entry from above", 106, 104, models.DirectionShort},
		{"crosses the whole band from above", 106, 94, models.DirectionShort},
	}
	for _, tc := range cases {
		got := bandCrossDirection(tc.prevClose, tc.close, lower, upper, true, true)
		if got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEvaluateTrendingBreakout(t *testing.T) {
	g := NewSignalGenerator(SignalConfig{
		ArmLong:       true,
		ArmShort:      true,
		TrendLookback: 5,
		MeanEmaLen:    10,
		MeanAtrLen:    5,
		MeanAtrMult:   0.6,
		TickSize:      0.25,
	})

	for i := 0; i < 6; i++ {
		observeBar(g, 110, 100, 105)
	}

	observeBar(g, 110.25, 104, 108)
	intent := g.Evaluate(models.RegimeTrending)
	if intent.Direction != models.DirectionLong {
		t.Fatalf("high 110.25 over rolling high 110 with tick 0.25: got %q, want long", intent.Direction)
	}
	if intent.ReferencePrice != 108 {
		t.Fatalf("reference price = %v, want last close 108", intent.ReferencePrice)
	}
}

func TestEvaluateTrendingNoTickMargin(t *testing.T) {
	g := NewSignalGenerator(SignalConfig{
		ArmLong:       true,
		TrendLookback: 5,
		MeanEmaLen:    10,
		MeanAtrLen:    5,
		MeanAtrMult:   0.6,
		TickSize:      0.25,
	})

	for i := 0; i < 6; i++ {
		observeBar(g, 110, 100, 105)
	}
	observeBar(g, 110.00, 104, 108)

	if intent := g.Evaluate(models.RegimeTrending); !intent.None() {
		t.Fatalf("touching the rolling high without the tick margin fired %q", intent.Direction)
	}
}

func TestEvaluateMeanRevertReEntry(t *testing.T) {
	g := NewSignalGenerator(SignalConfig{
		ArmLong:       true,
		ArmShort:      true,
		TrendLookback: 5,
		MeanEmaLen:    10,
		MeanAtrLen:    5,
		MeanAtrMult:   0.6,
		TickSize:      0.25,
	})

	for i := 0; i < 20; i++ {
		observeBar(g, 101, 99, 100)
	}
	// flush well below the band, then snap back
	observeBar(g, 100, 89, 90)
	observeBar(g, 100.5, 99.5, 100)

	intent := g.Evaluate(models.RegimeMeanReverting)
	if intent.Direction != models.DirectionLong {
		t.Fatalf("band re-entry from below: got %q, want long", intent.Direction)
	}
}

func TestEvaluateMeanRevertNoRetriggerInsideBand(t *testing.T) {
	g := NewSignalGenerator(SignalConfig{
		ArmLong:       true,
		ArmShort:      true,
		TrendLookback: 5,
		MeanEmaLen:    10,
		MeanAtrLen:    5,
		MeanAtrMult:   0.6,
		TickSize:      0.25,
	})

	for i := 0; i < 30; i++ {
		observeBar(g, 101, 99, 100)
	}

	if intent := g.Evaluate(models.RegimeMeanReverting); !intent.None() {
		t.Fatalf("stable closes inside the band fired %q", intent.Direction)
	}
}

func TestEvaluateNoTradeRegime(t *testing.T) {
	g := NewSignalGenerator(SignalConfig{
		ArmLong:       true,
		ArmShort:      true,
		TrendLookback: 5,
		MeanEmaLen:    10,
		MeanAtrLen:    5,
		MeanAtrMult:   0.6,
		TickSize:      0.25,
	})
	for i := 0; i < 6; i++ {
		observeBar(g, 110, 100, 105)
	}
	observeBar(g, 115, 104, 114)

	if intent := g.Evaluate(models.RegimeNoTrade); !intent.None() {
		t.Fatalf("NO_TRADE regime produced intent %q", intent.Direction)
	}
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	g := NewSignalGenerator(SignalConfig{ArmLong: true, TrendLookback: 5, TickSize: 0.25})
	observeBar(g, 110.25, 100, 108)

	if intent := g.Evaluate(models.RegimeTrending); !intent.None() {
		t.Fatalf("single bar of history produced intent %q", intent.Direction)
	}
}
