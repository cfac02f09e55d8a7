package inference

import (
	"encoding/json"

	"SpectreGate/internal/domain/models"
)

// Fields holds one decoded response line for tolerant, per-field extraction.
// A missing or malformed field yields the caller-supplied default instead of
// an error, so the protocol can grow optional fields without breaking older
// deployments.
type Fields map[string]json.RawMessage

// ParseLine decodes a raw response line into Fields.
func ParseLine(line string) (Fields, error) {
	var f Fields
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		return nil, err
	}
	return f, nil
}

// String extracts a string field or returns def.
func (f Fields) String(key, def string) string {
	raw, ok := f[key]
	if !ok {
		return def
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// Float extracts a numeric field or returns def.
func (f Fields) Float(key string, def float64) float64 {
	raw, ok := f[key]
	if !ok {
		return def
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// Bool extracts a boolean field or returns def.
func (f Fields) Bool(key string, def bool) bool {
	raw, ok := f[key]
	if !ok {
		return def
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// ApplyResponse folds one response line into the prior state.
//
// An unparseable line, or one without a regime, leaves the regime/confidence/
// reject trio untouched: degraded input means "no new information", never a
// halt. The reject default is true: the safe failure direction is no trade.
// The secondary filter defaults to pass-through for services that omit the
// xgb_* fields; strictSecondary flips those defaults to blocking.
//
// Returns the next state and whether the regime trio was updated.
func ApplyResponse(line string, prior models.InferenceState, strictSecondary bool) (models.InferenceState, bool) {
	f, err := ParseLine(line)
	if err != nil {
		return prior, false
	}

	next := prior
	updated := false

	if regime := f.String("regime", ""); regime != "" {
		// A present-but-unrecognized regime label is stored verbatim; it
		// yields no intent downstream. Only a missing field keeps the prior.
		next.Regime = models.Regime(regime)
		next.Confidence = f.Float("conf", 0)
		next.Reject = f.Bool("reject", true)
		updated = true
	}

	passDef, probDef := true, 1.0
	if strictSecondary {
		passDef, probDef = false, 0.0
	}
	next.SecondaryPass = f.Bool("xgb_pass", passDef)
	next.SecondaryProb = f.Float("xgb_prob", probDef)
	next.SecondaryLabel = f.String("xgb_label", "")
	if next.SecondaryLabel == "" {
		if next.SecondaryPass {
			next.SecondaryLabel = "PASS"
		} else {
			next.SecondaryLabel = "BLOCK"
		}
	}

	return next, updated
}
