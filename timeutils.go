package transitnotify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/transitwatch/transit-notify/store"
)

// parseClock converts an "HH:MM" wall-clock string to minutes past
// midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*60 + m, nil
}

// windowsContain reports whether now, evaluated in loc, falls inside any
// of the subscription's time windows. Weekdays follow time.Weekday
// numbering (0 = Sunday). Bounds are inclusive at minute resolution. An
// empty window list means the subscription is always time-eligible. A
// malformed window is skipped rather than matched.
func windowsContain(now time.Time, loc *time.Location, windows []store.TimeWindow) bool {
	if len(windows) == 0 {
		return true
	}
	local := now.In(loc)
	weekday := int(local.Weekday())
	minuteOfDay := local.Hour()*60 + local.Minute()

	for _, w := range windows {
		if !containsWeekday(w.Weekdays, weekday) {
			continue
		}
		start, err := parseClock(w.Start)
		if err != nil {
			continue
		}
		end, err := parseClock(w.End)
		if err != nil {
			continue
		}
		if minuteOfDay >= start && minuteOfDay <= end {
			return true
		}
	}
	return false
}

func containsWeekday(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
