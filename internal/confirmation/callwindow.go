package confirmation

import (
	"fmt"
	"time"
)

// CallWindow is the daily local-time range during which outbound confirmation
// calls may be placed.
type CallWindow struct {
	StartMinutes int
	EndMinutes   int
	location     *time.Location
	enabled      bool
}

// ParseCallWindow returns a call window from HH:MM strings.
func ParseCallWindow(start, end, tz string) (CallWindow, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return CallWindow{}, fmt.Errorf("confirmation: load call window tz: %w", err)
		}
	}
	startMin, err := parseClock(start)
	if err != nil {
		return CallWindow{}, fmt.Errorf("confirmation: parse call window start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return CallWindow{}, fmt.Errorf("confirmation: parse call window end: %w", err)
	}
	return CallWindow{
		StartMinutes: startMin,
		EndMinutes:   endMin,
		location:     loc,
		enabled:      true,
	}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Open reports whether the given moment falls inside the calling window.
// A zero CallWindow is disabled and always open.
func (w CallWindow) Open(now time.Time) bool {
	if !w.enabled {
		return true
	}
	local := now.In(w.location)
	minutes := local.Hour()*60 + local.Minute()
	if w.StartMinutes == w.EndMinutes {
		return true
	}
	if w.StartMinutes < w.EndMinutes {
		return minutes >= w.StartMinutes && minutes < w.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= w.StartMinutes || minutes < w.EndMinutes
}
