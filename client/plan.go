package client

import (
	"fmt"
	"time"
)

const (
	labelLayout = "Monday, January 2, 2006"
	valueLayout = "2006-01-02"
)

// slotWindows are the [start, end) hours of the three bookings.
var slotWindows = [3][2]int{{0, 4}, {4, 8}, {8, 12}}

// Slot describes one booking and the on-page strings that identify it.
type Slot struct {
	Index int // 1-based
	Start time.Time
	End   time.Time

	ClickLabel    string // e.g. "12:00am Saturday, November 1, 2025 - Mudd 2153 - Available"
	DropdownLabel string // e.g. "Mudd 2153: 12:00am Saturday, November 1, 2025,"
	DropdownValue string // e.g. "2025-11-01 04:00:00"
	Email         string
}

// Name is the human-readable slot name used in logs.
func (s Slot) Name() string {
	return fmt.Sprintf("Booking %d (%s-%s)", s.Index, s.Start.Format("3pm"), s.End.Format("3pm"))
}

// Plan is everything derived from the clock for one run.
type Plan struct {
	Target       time.Time
	DateLabel    string
	DateValue    string
	PageForwards int
	Slots        []Slot
}

// TargetDate returns midnight of the calendar day offset days after now, in loc.
func TargetDate(now time.Time, offset int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day()+offset, 0, 0, 0, 0, loc)
}

// DateLabel formats t the way the calendar labels its cells: no leading zero
// on the day, English weekday and month names.
func DateLabel(t time.Time) string { return t.Format(labelLayout) }

func DateValue(t time.Time) string { return t.Format(valueLayout) }

// NewPlan computes the target date and the three slot descriptors.
func NewPlan(cfg ReservationConfig, now time.Time) Plan {
	target := TargetDate(now, cfg.DayOffset, cfg.Location)
	label := DateLabel(target)
	value := DateValue(target)

	p := Plan{
		Target:       target,
		DateLabel:    label,
		DateValue:    value,
		PageForwards: cfg.DayOffset,
	}
	for i, w := range slotWindows {
		// time.Date keeps wall-clock hours on DST transition days.
		start := time.Date(target.Year(), target.Month(), target.Day(), w[0], 0, 0, 0, target.Location())
		end := time.Date(target.Year(), target.Month(), target.Day(), w[1], 0, 0, 0, target.Location())
		startText := start.Format("3:04pm")
		p.Slots = append(p.Slots, Slot{
			Index:         i + 1,
			Start:         start,
			End:           end,
			ClickLabel:    fmt.Sprintf("%s %s - %s - Available", startText, label, cfg.Room),
			DropdownLabel: fmt.Sprintf("%s: %s %s,", cfg.Room, startText, label),
			DropdownValue: fmt.Sprintf("%s %s", value, end.Format("15:04:05")),
			Email:         cfg.Profile.Emails[i],
		})
	}
	return p
}
