package models

// Regime is the coarse market-behavior classification emitted by the
// inference service.
type Regime string

const (
	RegimeTrending      Regime = "TRENDING"
	RegimeMeanReverting Regime = "MEAN_REVERTING"
	RegimeNoTrade       Regime = "NO_TRADE"
)

// InferenceState is the session-held view of the last classification.
// A malformed or missing response leaves the prior state in place, so the
// zero value is deliberately the no-trade direction (reject=true).
type InferenceState struct {
	Regime         Regime
	Confidence     float64
	Reject         bool
	SecondaryPass  bool
	SecondaryProb  float64
	SecondaryLabel string
}

// InitialInferenceState returns the state used before any response arrives:
// no regime, rejected, secondary filter passing for backward compatibility.
func InitialInferenceState() InferenceState {
	return InferenceState{
		Regime:         RegimeNoTrade,
		Confidence:     0,
		Reject:         true,
		SecondaryPass:  true,
		SecondaryProb:  1.0,
		SecondaryLabel: "PASS",
	}
}

// Signature returns a compact change-detection key; used to log regime
// updates once per distinct change instead of every bar.
func (s InferenceState) Signature() string {
	sig := string(s.Regime)
	if s.Reject {
		sig += "|R"
	}
	if !s.SecondaryPass {
		sig += "|B"
	}
	return sig
}
