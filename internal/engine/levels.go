package engine

import (
	"fmt"

	"SpectreGate/internal/domain/models"
	"SpectreGate/internal/domain/repository"
)

// LevelPlotter draws stop and target reference lines for each accepted
// signal and retires the oldest pair once the cap is reached.
type LevelPlotter struct {
	surface  repository.DrawSurface
	lineBars int
	maxPairs int

	tags []string // oldest first, two tags per signal
	seq  int
}

// NewLevelPlotter builds a plotter over the given surface. A nil surface
// yields a no-op plotter.
func NewLevelPlotter(surface repository.DrawSurface, lineBars, maxSignals int) *LevelPlotter {
	if lineBars < 2 {
		lineBars = 2
	}
	if maxSignals < 1 {
		maxSignals = 1
	}
	return &LevelPlotter{surface: surface, lineBars: lineBars, maxPairs: maxSignals}
}

// Plot draws the take-profit and stop-loss levels for one entry. Prices are
// derived from the entry reference using the tick-scaled offsets.
func (p *LevelPlotter) Plot(dir models.Direction, entry float64, barIndex int, stopTicks, targetTicks int, tickSize float64) {
	if p.surface == nil || dir == models.DirectionNone {
		return
	}

	sl := entry - float64(stopTicks)*tickSize
	tp := entry + float64(targetTicks)*tickSize
	if dir == models.DirectionShort {
		sl = entry + float64(stopTicks)*tickSize
		tp = entry - float64(targetTicks)*tickSize
	}

	p.seq++
	base := fmt.Sprintf("%s_%d", dir, p.seq)
	tpTag := base + "_TP"
	slTag := base + "_SL"

	from := barIndex
	to := barIndex + p.lineBars

	p.surface.DrawLevel(tpTag, tp, from, to, "target")
	p.surface.DrawLevel(slTag, sl, from, to, "stop")

	p.tags = append(p.tags, tpTag, slTag)
	for len(p.tags) > p.maxPairs*2 {
		p.surface.Remove(p.tags[0])
		p.surface.Remove(p.tags[1])
		p.tags = p.tags[2:]
	}
}

// Clear removes every level currently tracked.
func (p *LevelPlotter) Clear() {
	if p.surface == nil {
		return
	}
	for _, tag := range p.tags {
		p.surface.Remove(tag)
	}
	p.tags = nil
}
