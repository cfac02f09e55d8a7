package engine

import (
	"testing"

	"SpectreGate/internal/domain/models"
)

type drawnLevel struct {
	price    float64
	from, to int
	kind     string
}

type fakeSurface struct {
	levels  map[string]drawnLevel
	removed []string
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{levels: make(map[string]drawnLevel)}
}

func (s *fakeSurface) DrawLevel(tag string, price float64, fromBar, toBar int, kind string) {
	s.levels[tag] = drawnLevel{price: price, from: fromBar, to: toBar, kind: kind}
}

func (s *fakeSurface) Remove(tag string) {
	delete(s.levels, tag)
	s.removed = append(s.removed, tag)
}

func TestPlotDrawsStopAndTarget(t *testing.T) {
	surface := newFakeSurface()
	p := NewLevelPlotter(surface, 12, 80)

	p.Plot(models.DirectionLong, 100.0, 500, 80, 120, 0.25)

	if len(surface.levels) != 2 {
		t.Fatalf("drawn levels = %d, want 2", len(surface.levels))
	}
	var tp, sl drawnLevel
	for _, lv := range surface.levels {
		switch lv.kind {
		case "target":
			tp = lv
		case "stop":
			sl = lv
		}
	}
	if tp.price != 130.0 {
		t.Fatalf("long target = %v, want 130 (entry + 120 ticks)", tp.price)
	}
	if sl.price != 80.0 {
		t.Fatalf("long stop = %v, want 80 (entry - 80 ticks)", sl.price)
	}
	if tp.from != 500 || tp.to != 512 {
		t.Fatalf("level span = [%d,%d], want [500,512]", tp.from, tp.to)
	}
}

func TestPlotShortMirrorsLevels(t *testing.T) {
	surface := newFakeSurface()
	p := NewLevelPlotter(surface, 12, 80)

	p.Plot(models.DirectionShort, 100.0, 500, 80, 120, 0.25)

	for _, lv := range surface.levels {
		switch lv.kind {
		case "target":
			if lv.price != 70.0 {
				t.Fatalf("short target = %v, want 70", lv.price)
			}
		case "stop":
			if lv.price != 120.0 {
				t.Fatalf("short stop = %v, want 120", lv.price)
			}
		}
	}
}

func TestPlotEvictsOldestPair(t *testing.T) {
	surface := newFakeSurface()
	p := NewLevelPlotter(surface, 12, 3)

	for i := 0; i < 5; i++ {
		p.Plot(models.DirectionLong, 100.0, i*10, 80, 120, 0.25)
	}

	if len(surface.levels) != 6 {
		t.Fatalf("retained levels = %d, want 6 (3 signals, 2 tags each)", len(surface.levels))
	}
	if len(surface.removed) != 4 {
		t.Fatalf("removed tags = %d, want 4 (2 evicted signals)", len(surface.removed))
	}
	// oldest tags go first
	if surface.removed[0] != "long_1_TP" || surface.removed[1] != "long_1_SL" {
		t.Fatalf("eviction order wrong: %v", surface.removed[:2])
	}
}

func TestPlotClampsLineBars(t *testing.T) {
	surface := newFakeSurface()
	p := NewLevelPlotter(surface, 0, 80)

	p.Plot(models.DirectionLong, 100.0, 10, 80, 120, 0.25)
	for _, lv := range surface.levels {
		if lv.to-lv.from != 2 {
			t.Fatalf("line span = %d bars, want clamped minimum 2", lv.to-lv.from)
		}
	}
}

func TestClearRemovesEverything(t *testing.T) {
	surface := newFakeSurface()
	p := NewLevelPlotter(surface, 12, 80)
	p.Plot(models.DirectionLong, 100.0, 10, 80, 120, 0.25)
	p.Plot(models.DirectionShort, 200.0, 20, 80, 120, 0.25)

	p.Clear()
	if len(surface.levels) != 0 {
		t.Fatalf("levels remain after Clear: %d", len(surface.levels))
	}
}

func TestNilSurfaceIsNoOp(t *testing.T) {
	p := NewLevelPlotter(nil, 12, 80)
	p.Plot(models.DirectionLong, 100.0, 10, 80, 120, 0.25)
	p.Clear()
}
