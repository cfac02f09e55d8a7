package engine

import (
	"time"

	"SpectreGate/internal/domain/models"
	"SpectreGate/internal/domain/repository"
	"SpectreGate/pkg/logger"
	"SpectreGate/pkg/util"
)

// SessionClockConfig carries the session gating knobs.
type SessionClockConfig struct {
	UseTradeWindow       bool
	TradeStart           int // HHMMSS
	TradeEnd             int // HHMMSS
	FlattenTime          int // HHMMSS
	UseDailyPause        bool
	FlattenMinsBeforeEnd int
	ResumeMinsAfterStart int
}

// SessionClock caches the current session window and answers the pause and
// trade-window checks. The cached window is recomputed only when the
// observed end no longer covers now (session rollover).
type SessionClock struct {
	cal    repository.SessionCalendar
	cfg    SessionClockConfig
	logger *logger.Logger

	window models.SessionWindow
}

// NewSessionClock builds a clock over the given calendar.
func NewSessionClock(cal repository.SessionCalendar, cfg SessionClockConfig, l *logger.Logger) *SessionClock {
	return &SessionClock{cal: cal, cfg: cfg, logger: l}
}

// Window returns the session window for now, cached across bars.
func (s *SessionClock) Window(now time.Time) models.SessionWindow {
	if !s.window.IsZero() && !now.After(s.window.End) {
		return s.window
	}
	w, err := s.cal.SessionFor(now)
	if err != nil {
		s.logger.Warn("session lookup failed", logger.Error(err))
		return models.SessionWindow{}
	}
	if !w.End.Equal(s.window.End) {
		s.logger.Info("session window",
			logger.Time("begin", w.Begin),
			logger.Time("end", w.End),
			logger.Time("now", now))
	}
	s.window = w
	return w
}

// InDailyPause reports whether now falls in the quiet window right before
// session end or right after session start. Both windows include their
// boundaries. Disabled entirely by configuration.
func (s *SessionClock) InDailyPause(now time.Time) bool {
	if !s.cfg.UseDailyPause {
		return false
	}
	w := s.Window(now)
	if w.IsZero() {
		return false
	}

	pauseStart := w.End.Add(-time.Duration(s.cfg.FlattenMinsBeforeEnd) * time.Minute)
	resumeEnd := w.Begin.Add(time.Duration(s.cfg.ResumeMinsAfterStart) * time.Minute)

	nearEnd := !now.Before(pauseStart) && !now.After(w.End)
	nearStart := !now.Before(w.Begin) && !now.After(resumeEnd)
	return nearEnd || nearStart
}

// InTradeWindow reports whether now is inside the fixed HHMMSS trade window.
// Always true when the window is disabled.
func (s *SessionClock) InTradeWindow(now time.Time) bool {
	if !s.cfg.UseTradeWindow {
		return true
	}
	t := util.TimeOfDay(now)
	return t >= s.cfg.TradeStart && t <= s.cfg.TradeEnd
}

// PastFlattenTime reports whether now is at or past the fixed flatten time.
// Never fires when the trade window is disabled.
func (s *SessionClock) PastFlattenTime(now time.Time) bool {
	if !s.cfg.UseTradeWindow {
		return false
	}
	return util.TimeOfDay(now) >= s.cfg.FlattenTime
}
