package preference

import (
	"fmt"
	"sync"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
)

const minutesPerDay = 24 * 60

// ParseClock parses "HH:MM" into minutes since midnight
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || t.Format("15:04") != s {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

var locations sync.Map // name -> *time.Location

// loadLocation resolves an IANA zone name, falling back to UTC
func loadLocation(name string) *time.Location {
	if name == "" || name == "UTC" {
		return time.UTC
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	locations.Store(name, loc)
	return loc
}

// InWindow reports whether minute falls in [start, end). When end < start
// the window wraps past midnight and covers [start, 1440) and [0, end).
func InWindow(minute, start, end int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return minute >= start && minute < end
	default:
		return minute >= start || minute < end
	}
}

// InQuietHours reports whether a notification of the given priority at
// time at falls inside the user's quiet hours.
func InQuietHours(qh domain.QuietHours, priority domain.Priority, at time.Time) bool {
	if !qh.Enabled {
		return false
	}
	if priority == domain.PriorityCritical && qh.AllowCritical {
		return false
	}

	local := at.In(loadLocation(qh.Timezone))
	if len(qh.DaysOfWeek) > 0 && !containsDay(qh.DaysOfWeek, int(local.Weekday())) {
		return false
	}

	start, err := ParseClock(qh.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(qh.End)
	if err != nil {
		return false
	}
	return InWindow(local.Hour()*60+local.Minute(), start, end)
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
