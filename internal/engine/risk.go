package engine

import (
	"time"

	"SpectreGate/internal/domain/models"
	"SpectreGate/pkg/util"
)

const neverEntered = -1 << 30

// RiskTracker holds the per-session trade counter and the entry cooldown.
// It is owned exclusively by the engine's gate; the counter resets if and
// only if the calendar date of the bar differs from the stored session date.
type RiskTracker struct {
	cooldownBars int
	maxTrades    int

	trades       int
	sessionDate  string
	lastEntryBar int
}

// NewRiskTracker builds a tracker; nonsensical limits are clamped.
func NewRiskTracker(cooldownBars, maxTrades int) *RiskTracker {
	if cooldownBars < 0 {
		cooldownBars = 0
	}
	if maxTrades < 1 {
		maxTrades = 1
	}
	return &RiskTracker{
		cooldownBars: cooldownBars,
		maxTrades:    maxTrades,
		lastEntryBar: neverEntered,
	}
}

// ResetIfNewDay resets the session counter when the bar's calendar date
// differs from the stored one. Must run before any gating check each bar.
// Returns true on rollover.
func (r *RiskTracker) ResetIfNewDay(barTime time.Time) bool {
	key := util.DateKey(barTime)
	if key == r.sessionDate {
		return false
	}
	r.sessionDate = key
	r.trades = 0
	return true
}

// CooldownSatisfied reports whether enough bars have elapsed since the last
// actual entry.
func (r *RiskTracker) CooldownSatisfied(barIndex int) bool {
	return barIndex-r.lastEntryBar >= r.cooldownBars
}

// CapReached reports whether the per-session trade cap is exhausted.
func (r *RiskTracker) CapReached() bool {
	return r.trades >= r.maxTrades
}

// RecordEntry registers a submitted order. Called only after the host
// accepted the submission, never on a mere signal. lastEntryBar only moves
// forward.
func (r *RiskTracker) RecordEntry(barIndex int) {
	r.trades++
	if barIndex > r.lastEntryBar {
		r.lastEntryBar = barIndex
	}
}

// Trades returns the session trade count.
func (r *RiskTracker) Trades() int { return r.trades }

// LastEntryBar returns the bar index of the last submitted entry.
func (r *RiskTracker) LastEntryBar() int { return r.lastEntryBar }

// Snapshot exports the tracker state for persistence.
func (r *RiskTracker) Snapshot() *models.RiskSnapshot {
	return &models.RiskSnapshot{
		SessionDate:  r.sessionDate,
		Trades:       r.trades,
		LastEntryBar: r.lastEntryBar,
	}
}

// Restore imports a persisted snapshot. A snapshot from an older date is
// neutralized by the next ResetIfNewDay, so restoring stale state is safe.
func (r *RiskTracker) Restore(s *models.RiskSnapshot) {
	if s == nil {
		return
	}
	r.sessionDate = s.SessionDate
	r.trades = s.Trades
	if s.LastEntryBar > r.lastEntryBar {
		r.lastEntryBar = s.LastEntryBar
	}
}
