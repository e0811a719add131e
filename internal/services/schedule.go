package services

import (
	"fmt"
	"time"

	"bilancio/internal/core"
)

// Schedule decides whether a recurring template has an occurrence due on
// today, given when it last ran. anchor is the template's start date and
// fixes the day (and month, for yearly templates) of each occurrence.
type Schedule interface {
	Due(lastRun time.Time, today, anchor core.Date) bool
}

type dailySchedule struct{}

// Due once per calendar day.
func (dailySchedule) Due(lastRun time.Time, today, _ core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	return core.DateOf(lastRun).Compare(today) < 0
}

type weeklySchedule struct{}

// Due when at least seven calendar days separate today from the last run.
func (weeklySchedule) Due(lastRun time.Time, today, _ core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	next := core.DateOf(lastRun).AddDate(0, 0, 7)
	return !today.Before(next)
}

type monthlySchedule struct{}

func (monthlySchedule) Due(lastRun time.Time, today, anchor core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	last := core.DateOf(lastRun)
	if last.Year() == today.Year() && last.Month() == today.Month() {
		return false
	}
	return today.Day() >= clampDay(today.Year(), today.Month(), anchor.Day())
}

type yearlySchedule struct{}

func (yearlySchedule) Due(lastRun time.Time, today, anchor core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	if core.DateOf(lastRun).Year() == today.Year() {
		return false
	}
	switch {
	case today.Month() < anchor.Month():
		return false
	case today.Month() > anchor.Month():
		return true
	}
	return today.Day() >= clampDay(today.Year(), today.Month(), anchor.Day())
}

// clampDay maps an anchor day onto a month that may be shorter, so a
// template anchored on the 31st runs on the last day of February.
func clampDay(year, month, day int) int {
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return min(day, last)
}

var schedules = map[core.RepetitionTypes]Schedule{
	core.Daily:   dailySchedule{},
	core.Weekly:  weeklySchedule{},
	core.Monthly: monthlySchedule{},
	core.Yearly:  yearlySchedule{},
}

// ScheduleFor returns the schedule for a repetition type.
func ScheduleFor(every core.RepetitionTypes) (Schedule, error) {
	s, ok := schedules[every]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidRepetition, every)
	}
	return s, nil
}
