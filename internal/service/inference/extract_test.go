package inference

import (
    "testing"

    "SpectreGate/internal/domain/models"
)

func priorState() models.InferenceState {
    return models.InferenceState{
        Regime:         models.RegimeTrending,
        Confidence:     0.72,
        Reject:         false,
        SecondaryPass:  true,
        SecondaryProb:  0.9,
        SecondaryLabel: "PASS",
    }
}

func TestApplyResponseFull(t *testing.T) {
    line := `{"regime":"MEAN_REVERTING","conf":0.81,"reject":false,"xgb_pass":true,"xgb_prob":0.66,"xgb_label":"GOOD"}`
    next, updated := ApplyResponse(line, priorState(), false)
    if !updated {
        t.Fatalf("expected regime update")
    }
    if next.Regime != models.RegimeMeanReverting || next.Confidence != 0.81 || next.Reject {
        t.Fatalf("unexpected state %+v", next)
    }
    if !next.SecondaryPass || next.SecondaryProb != 0.66 || next.SecondaryLabel != "GOOD" {
        t.Fatalf("unexpected secondary %+v", next)
    }
}

func TestApplyResponseMissingRegimeKeepsPrior(t *testing.T) {
    next, updated := ApplyResponse(`{"conf":0.99,"reject":false}`, priorState(), false)
    if updated {
        t.Fatalf("expected no regime update")
    }
    if next.Regime != models.RegimeTrending || next.Confidence != 0.72 || next.Reject {
        t.Fatalf("prior regime state must be preserved, got %+v", next)
    }
}

func TestApplyResponseMalformedLineKeepsEverything(t *testing.T) {
    prior := priorState()
    next, updated := ApplyResponse(`{"regime": TRENDING`, prior, false)
    if updated || next != prior {
        t.Fatalf("malformed line must leave state unchanged, got %+v", next)
    }
}

func TestApplyResponseRejectDefaultsTrue(t *testing.T) {
    next, updated := ApplyResponse(`{"regime":"TRENDING","conf":0.7}`, priorState(), false)
    if !updated {
        t.Fatalf("expected update")
    }
    if !next.Reject {
        t.Fatalf("missing reject must default to true")
    }
}

func TestApplyResponseSecondaryDefaults(t *testing.T) {
    next, _ := ApplyResponse(`{"regime":"TRENDING","conf":0.7,"reject":false}`, priorState(), false)
    if !next.SecondaryPass || next.SecondaryProb != 1.0 || next.SecondaryLabel != "PASS" {
        t.Fatalf("compat defaults must pass through, got %+v", next)
    }

    strict, _ := ApplyResponse(`{"regime":"TRENDING","conf":0.7,"reject":false}`, priorState(), true)
    if strict.SecondaryPass || strict.SecondaryProb != 0.0 || strict.SecondaryLabel != "BLOCK" {
        t.Fatalf("strict defaults must block, got %+v", strict)
    }
}

func TestFieldsTypeMismatchFallsBack(t *testing.T) {
    f, err := ParseLine(`{"conf":"high","reject":"nope","regime":5}`)
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    if got := f.Float("conf", 0.5); got != 0.5 {
        t.Fatalf("expected default float, got %v", got)
    }
    if got := f.Bool("reject", true); !got {
        t.Fatalf("expected default bool")
    }
    if got := f.String("regime", "NO_TRADE"); got != "NO_TRADE" {
        t.Fatalf("expected default string, got %q", got)
    }
}
