package jobs

import (
	"fmt"
	"time"
)

// QuietHours is a daily window during which no new chapter starts. A window
// whose end is before its start wraps past midnight.
type QuietHours struct {
	Start time.Duration // offset from midnight
	End   time.Duration
	set   bool
}

// ParseQuietHours parses "HH:MM" bounds. Two empty strings disable the window.
func ParseQuietHours(start, end string) (QuietHours, error) {
	if start == "" && end == "" {
		return QuietHours{}, nil
	}
	s, err := ParseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	return QuietHours{Start: s, End: e, set: s != e}, nil
}

// ParseClock parses a 24-hour "HH:MM" time of day.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Enabled reports whether a window is configured.
func (q QuietHours) Enabled() bool { return q.set }

// Contains reports whether t falls inside the window, in t's location.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.set {
		return false
	}
	h, m, s := t.Clock()
	now := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	if q.Start < q.End {
		return now >= q.Start && now < q.End
	}
	return now >= q.Start || now < q.End
}

func (q QuietHours) String() string {
	if !q.set {
		return ""
	}
	return fmt.Sprintf("%s-%s", clock(q.Start), clock(q.End))
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
