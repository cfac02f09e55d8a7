package models

import "time"

// BarSnapshot is one bar/tick event delivered by the trading host.
// Created fresh per event by the host bridge and consumed once per loop pass.
type BarSnapshot struct {
	Symbol    string
	Time      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Bid       float64
	Ask       float64
	Index     int  // monotonic bar index from the host
	FirstTick bool // true on the first sub-bar tick of a new bar
}

// PositionState mirrors the host's flat/long/short market position.
type PositionState string

const (
	PositionFlat  PositionState = "flat"
	PositionLong  PositionState = "long"
	PositionShort PositionState = "short"
)

// SessionWindow is the begin/end of the trading session containing a time.
type SessionWindow struct {
	Begin time.Time
	End   time.Time
}

// IsZero reports whether the window has not been resolved yet.
func (w SessionWindow) IsZero() bool {
	return w.Begin.IsZero() || w.End.IsZero()
}
