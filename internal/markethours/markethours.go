// Package markethours decides whether an exchange session is open, so the
// indicator service can stop recomputing while no new candles arrive.
package markethours

import (
	"fmt"
	"strings"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session is a daily trading window on weekdays, minus holidays.
// Open and Close are offsets from local midnight.
type Session struct {
	Name     string
	Location *time.Location
	Open     time.Duration
	Close    time.Duration
	holidays map[string]bool // "2006-01-02" in Location
}

// NSE returns the NSE cash session, 9:15 to 15:30 IST.
func NSE(holidays ...string) (*Session, error) {
	return NewSession("nse", IST, 9*time.Hour+15*time.Minute, 15*time.Hour+30*time.Minute, holidays...)
}

// NewSession creates a session. holidays are dates in YYYY-MM-DD form.
func NewSession(name string, loc *time.Location, open, close time.Duration, holidays ...string) (*Session, error) {
	if open >= close || open < 0 || close > 24*time.Hour {
		return nil, fmt.Errorf("session %s: invalid window %s-%s", name, open, close)
	}
	s := &Session{Name: name, Location: loc, Open: open, Close: close, holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := time.ParseInLocation(time.DateOnly, h, loc); err != nil {
			return nil, fmt.Errorf("session %s: holiday %q: %w", name, h, err)
		}
		s.holidays[h] = true
	}
	return s, nil
}

// IsHoliday reports whether t falls on a configured holiday.
func (s *Session) IsHoliday(t time.Time) bool {
	return s.holidays[t.In(s.Location).Format(time.DateOnly)]
}

// IsTradingDay reports whether t is a weekday and not a holiday.
func (s *Session) IsTradingDay(t time.Time) bool {
	wd := t.In(s.Location).Weekday()
	return wd != time.Saturday && wd != time.Sunday && !s.IsHoliday(t)
}

// IsOpen reports whether t is inside [Open, Close) on a trading day.
func (s *Session) IsOpen(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	since := t.In(s.Location).Sub(s.midnight(t))
	return since >= s.Open && since < s.Close
}

// NextOpen returns the next session open at or after t.
func (s *Session) NextOpen(t time.Time) time.Time {
	day := s.midnight(t)
	for i := 0; i < 15; i++ {
		open := day.Add(s.Open)
		if s.IsTradingDay(day) && !open.Before(t) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(s.Open)
}

// Status returns a short human-readable session status.
func (s *Session) Status(t time.Time) string {
	if s.IsOpen(t) {
		return fmt.Sprintf("%s open, closes in %s", s.Name, fmtDur(s.midnight(t).Add(s.Close).Sub(t)))
	}
	next := s.NextOpen(t)
	return fmt.Sprintf("%s closed, opens %s %s (%s)",
		s.Name, next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func (s *Session) midnight(t time.Time) time.Time {
	l := t.In(s.Location)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, s.Location)
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
