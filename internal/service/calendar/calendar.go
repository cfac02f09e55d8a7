package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"SpectreGate/internal/domain/models"
)

// Calendar resolves trading sessions from a fixed daily template in a
// configured timezone. It answers like the host platform's session
// iterator: the session containing t, or the next one when t falls after
// today's close.
type Calendar struct {
	loc          *time.Location
	beginHour    int
	beginMin     int
	endHour      int
	endMin       int
	weekdaysOnly bool
}

// New builds a calendar. begin/end are wall-clock "HH:MM" strings in tz.
// An end at or before begin means the session closes on the following day.
func New(tz, begin, end string, weekdaysOnly bool) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	bh, bm, err := parseHHMM(begin)
	if err != nil {
		return nil, fmt.Errorf("parse session begin: %w", err)
	}
	eh, em, err := parseHHMM(end)
	if err != nil {
		return nil, fmt.Errorf("parse session end: %w", err)
	}
	return &Calendar{
		loc:          loc,
		beginHour:    bh,
		beginMin:     bm,
		endHour:      eh,
		endMin:       em,
		weekdaysOnly: weekdaysOnly,
	}, nil
}

// SessionFor returns the session window containing t, or the next session
// when t is after today's close.
func (c *Calendar) SessionFor(t time.Time) (models.SessionWindow, error) {
	lt := t.In(c.loc)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)

	for i := 0; i < 8; i++ {
		if c.weekdaysOnly && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			day = day.AddDate(0, 0, 1)
			continue
		}
		w := c.windowOn(day)
		if !lt.After(w.End) {
			return w, nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return models.SessionWindow{}, fmt.Errorf("no session found near %v", t)
}

func (c *Calendar) windowOn(day time.Time) models.SessionWindow {
	begin := day.Add(time.Duration(c.beginHour)*time.Hour + time.Duration(c.beginMin)*time.Minute)
	end := day.Add(time.Duration(c.endHour)*time.Hour + time.Duration(c.endMin)*time.Minute)
	if !end.After(begin) {
		end = end.AddDate(0, 0, 1)
	}
	return models.SessionWindow{Begin: begin, End: end}
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return h, m, nil
}
