package inference

import (
	"encoding/json"
	"time"

	"SpectreGate/internal/domain/models"
)

type requestBar struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type request struct {
	TS     string     `json:"ts"`
	Symbol string     `json:"symbol"`
	Bar    requestBar `json:"bar"`
	Bid    float64    `json:"bid"`
	Ask    float64    `json:"ask"`
}

// BuildRequest serializes one bar snapshot as a single newline-terminated
// JSON line for the inference service. Number formatting is locale-invariant
// by construction (encoding/json).
func BuildRequest(bar *models.BarSnapshot, now time.Time) string {
	req := request{
		TS:     now.UTC().Format(time.RFC3339Nano),
		Symbol: bar.Symbol,
		Bar: requestBar{
			Time:   bar.Time.Format(time.RFC3339Nano),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		},
		Bid: bar.Bid,
		Ask: bar.Ask,
	}
	b, err := json.Marshal(req)
	if err != nil {
		// request is built from plain numeric fields; Marshal cannot fail here
		return ""
	}
	return string(b) + "\n"
}
