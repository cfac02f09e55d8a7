package models

import "time"

// Direction is the trade intent direction for one bar.
type Direction string

const (
	DirectionNone  Direction = "none"
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeIntent is a directional proposal produced by the signal generator.
// Consumed immediately by the execution gate; never persisted.
type TradeIntent struct {
	Direction      Direction
	ReferencePrice float64
}

// None reports whether the intent carries no direction.
func (i TradeIntent) None() bool { return i.Direction == DirectionNone || i.Direction == "" }

// GateDecision is the outcome of the execution gate for one bar. Only
// Permitted is contract; Reason is a diagnostic for logs and the journal.
type GateDecision struct {
	Permitted bool
	Reason    string
}

// DecisionEvent is the per-bar audit record written to the journal and
// published to the event topic.
type DecisionEvent struct {
	Symbol        string    `json:"symbol"`
	BarTime       time.Time `json:"bar_time"`
	BarIndex      int       `json:"bar_index"`
	Regime        string    `json:"regime"`
	Confidence    float64   `json:"confidence"`
	Reject        bool      `json:"reject"`
	SecondaryPass bool      `json:"secondary_pass"`
	SecondaryProb float64   `json:"secondary_prob"`
	Intent        string    `json:"intent"`
	Permitted     bool      `json:"permitted"`
	Submitted     bool      `json:"submitted"`
	Qty           int       `json:"qty,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// RiskSnapshot is the persisted form of the risk tracker state, so a
// same-day restart does not reset the per-session trade cap.
type RiskSnapshot struct {
	SessionDate  string `json:"session_date"` // YYYY-MM-DD
	Trades       int    `json:"trades"`
	LastEntryBar int    `json:"last_entry_bar"`
}

// EngineStatus is the externally observable engine state for the status API.
type EngineStatus struct {
	Symbol        string    `json:"symbol"`
	Regime        string    `json:"regime"`
	Confidence    float64   `json:"confidence"`
	Reject        bool      `json:"reject"`
	SecondaryPass bool      `json:"secondary_pass"`
	SecondaryProb float64   `json:"secondary_prob"`
	Trades        int       `json:"trades_this_session"`
	LastEntryBar  int       `json:"last_entry_bar"`
	BarIndex      int       `json:"bar_index"`
	BarTime       time.Time `json:"bar_time"`
	Position      string    `json:"position"`
	LinkConnected bool      `json:"link_connected"`
	FeedConnected bool      `json:"feed_connected"`
}
