package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vhvplatform/go-notification-orchestrator/internal/preference"
)

// HourlySchedule fires at minute 0 of every hour in Location
type HourlySchedule struct {
	Location *time.Location
}

// Next implements cron.Schedule
func (s HourlySchedule) Next(t time.Time) time.Time {
	local := t.In(location(s.Location))
	top := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, local.Location())
	return top.Add(time.Hour)
}

// DailySchedule fires once a day at Hour:Minute in Location
type DailySchedule struct {
	Hour, Minute int
	Location     *time.Location
}

// Next implements cron.Schedule
func (s DailySchedule) Next(t time.Time) time.Time {
	local := t.In(location(s.Location))
	next := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, local.Location())
	if !next.After(t) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.Hour, s.Minute, 0, 0, local.Location())
	}
	return next
}

// WeeklySchedule fires once a week on Day at Hour:Minute in Location
type WeeklySchedule struct {
	Day          time.Weekday
	Hour, Minute int
	Location     *time.Location
}

// Next implements cron.Schedule
func (s WeeklySchedule) Next(t time.Time) time.Time {
	local := t.In(location(s.Location))
	ahead := (int(s.Day) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+ahead, s.Hour, s.Minute, 0, 0, local.Location())
	if !next.After(t) {
		next = time.Date(local.Year(), local.Month(), local.Day()+ahead+7, s.Hour, s.Minute, 0, 0, local.Location())
	}
	return next
}

// NewDailySchedule parses an HH:MM clock
func NewDailySchedule(clock string, loc *time.Location) (DailySchedule, error) {
	minutes, err := preference.ParseClock(clock)
	if err != nil {
		return DailySchedule{}, fmt.Errorf("daily digest time: %w", err)
	}
	return DailySchedule{Hour: minutes / 60, Minute: minutes % 60, Location: loc}, nil
}

// NewWeeklySchedule parses an HH:MM clock on a weekday
func NewWeeklySchedule(day time.Weekday, clock string, loc *time.Location) (WeeklySchedule, error) {
	minutes, err := preference.ParseClock(clock)
	if err != nil {
		return WeeklySchedule{}, fmt.Errorf("weekly digest time: %w", err)
	}
	return WeeklySchedule{Day: day, Hour: minutes / 60, Minute: minutes % 60, Location: loc}, nil
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

var (
	_ cron.Schedule = HourlySchedule{}
	_ cron.Schedule = DailySchedule{}
	_ cron.Schedule = WeeklySchedule{}
)
