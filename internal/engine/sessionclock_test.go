package engine

import (
	"testing"
	"time"

	"SpectreGate/internal/domain/models"
	"SpectreGate/pkg/logger"
)

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

// fixedCalendar returns one constant session window.
type fixedCalendar struct {
	win models.SessionWindow
}

func (c fixedCalendar) SessionFor(time.Time) (models.SessionWindow, error) {
	return c.win, nil
}

func clockAt(t *testing.T, cfg SessionClockConfig) *SessionClock {
	t.Helper()
	win := models.SessionWindow{
		Begin: time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 3, 16, 0, 0, 0, time.UTC),
	}
	return NewSessionClock(fixedCalendar{win: win}, cfg, quietLogger(t))
}

func TestInDailyPauseBoundaries(t *testing.T) {
	clock := clockAt(t, SessionClockConfig{
		UseDailyPause:        true,
		FlattenMinsBeforeEnd: 15,
		ResumeMinsAfterStart: 15,
	})

	cases := []struct {
		name string
		hh   int
		mm   int
		want bool
	}{
		{"mid session", 12, 0, false},
		{"before end pause", 15, 44, false},
		{"at end pause start", 15, 45, true},
		{"inside end pause", 15, 46, true},
		{"at session end", 16, 0, true},
		{"at session open", 9, 30, true},
		{"inside open pause", 9, 44, true},
		{"at open pause end", 9, 45, true},
		{"after open pause", 9, 46, false},
	}
	for _, tc := range cases {
		now := time.Date(2025, time.March, 3, tc.hh, tc.mm, 0, 0, time.UTC)
		if got := clock.InDailyPause(now); got != tc.want {
			t.Fatalf("%s: InDailyPause(%02d:%02d) = %v, want %v", tc.name, tc.hh, tc.mm, got, tc.want)
		}
	}
}

func TestInDailyPauseDisabled(t *testing.T) {
	clock := clockAt(t, SessionClockConfig{
		UseDailyPause:        false,
		FlattenMinsBeforeEnd: 15,
		ResumeMinsAfterStart: 15,
	})
	now := time.Date(2025, time.March, 3, 15, 59, 0, 0, time.UTC)
	if clock.InDailyPause(now) {
		t.Fatalf("pause disabled but InDailyPause fired")
	}
}

func TestInTradeWindow(t *testing.T) {
	clock := clockAt(t, SessionClockConfig{
		UseTradeWindow: true,
		TradeStart:     73000,
		TradeEnd:       125000,
		FlattenTime:    125900,
	})

	cases := []struct {
		hh, mm, ss int
		want       bool
	}{
		{7, 29, 59, false},
		{7, 30, 0, true},
		{10, 0, 0, true},
		{12, 50, 0, true},
		{12, 50, 1, false},
	}
	for _, tc := range cases {
		now := time.Date(2025, time.March, 3, tc.hh, tc.mm, tc.ss, 0, time.UTC)
		if got := clock.InTradeWindow(now); got != tc.want {
			t.Fatalf("InTradeWindow(%02d:%02d:%02d) = %v, want %v", tc.hh, tc.mm, tc.ss, got, tc.want)
		}
	}
}

func TestPastFlattenTime(t *testing.T) {
	clock := clockAt(t, SessionClockConfig{
		UseTradeWindow: true,
		TradeStart:     73000,
		TradeEnd:       125000,
		FlattenTime:    125900,
	})

	before := time.Date(2025, time.March, 3, 12, 58, 59, 0, time.UTC)
	at := time.Date(2025, time.March, 3, 12, 59, 0, 0, time.UTC)
	if clock.PastFlattenTime(before) {
		t.Fatalf("12:58:59 must not be past flatten time")
	}
	if !clock.PastFlattenTime(at) {
		t.Fatalf("12:59:00 must be past flatten time")
	}
}

func TestTradeWindowDisabledAlwaysOpen(t *testing.T) {
	clock := clockAt(t, SessionClockConfig{UseTradeWindow: false, FlattenTime: 125900})
	now := time.Date(2025, time.March, 3, 3, 0, 0, 0, time.UTC)
	if !clock.InTradeWindow(now) {
		t.Fatalf("window disabled must always be open")
	}
	if clock.PastFlattenTime(time.Date(2025, time.March, 3, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("flatten must never fire with the window disabled")
	}
}
