package design

import (
	"fmt"
	"strings"
	"time"
)

// Window is a named time-of-day interval whose settings override the
// defaults. Both bounds are inclusive.
type Window struct {
	Name     string
	Start    time.Duration // offset from midnight
	End      time.Duration
	Override Settings
}

// ParseWindow parses a window name of the form "HH:MM-HH:MM".
func ParseWindow(name string) (start, end time.Duration, err error) {
	s, e, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, fmt.Errorf("time window %q: want HH:MM-HH:MM", name)
	}
	if start, err = parseClock(s); err != nil {
		return 0, 0, fmt.Errorf("time window %q: %w", name, err)
	}
	if end, err = parseClock(e); err != nil {
		return 0, 0, fmt.Errorf("time window %q: %w", name, err)
	}
	return start, end, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Clock returns the time of day of t as an offset from midnight.
func Clock(t time.Time) time.Duration {
	y, m, d := t.Date()
	return t.Sub(time.Date(y, m, d, 0, 0, 0, 0, t.Location()))
}

// Lookup returns the index of the first window containing the time of day
// clock. Overlapping windows are not ranked: list order decides.
func Lookup(clock time.Duration, windows []Window) (int, bool) {
	for i, w := range windows {
		if w.Start <= clock && clock <= w.End {
			return i, true
		}
	}
	return 0, false
}
