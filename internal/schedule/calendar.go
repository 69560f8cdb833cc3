package schedule

import "time"

// Range is a contiguous working interval within a day, half-open: a
// booking may start at Start and must end at or before End.
type Range struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (r Range) Contains(start, end TimeOfDay) bool {
	return r.Start <= start && end <= r.End
}

// Calendar decides the legal working hours for any date. The clinic
// runs a single continuous shift during the high season months and a
// split day (morning + afternoon, midday break in between) the rest of
// the year. The rule depends only on the date's month, so hours for any
// date are computable without a day-specific override.
//
// Every component that needs working hours goes through this type;
// nothing else is allowed to decide what a valid slot is.
type Calendar struct {
	HighSeasonFrom time.Month // first high-season month, inclusive
	HighSeasonTo   time.Month // last high-season month, inclusive
	HighSeason     []Range    // single continuous range
	LowSeason      []Range    // split day, ordered, disjoint
	SlotMinutes    int        // slot granularity
}

// Default returns the clinic's production calendar: summer (Jul-Sep)
// 08:00-15:00, winter 10:00-14:00 and 16:00-20:00, 30-minute slots.
func Default() Calendar {
	return Calendar{
		HighSeasonFrom: time.July,
		HighSeasonTo:   time.September,
		HighSeason: []Range{
			{Start: At(8, 0), End: At(15, 0)},
		},
		LowSeason: []Range{
			{Start: At(10, 0), End: At(14, 0)},
			{Start: At(16, 0), End: At(20, 0)},
		},
		SlotMinutes: 30,
	}
}

// RangesForDate returns the working ranges in effect on the given
// date, ordered by start time. Pure function of the date's month.
func (c Calendar) RangesForDate(date time.Time) []Range {
	m := date.Month()
	if m >= c.HighSeasonFrom && m <= c.HighSeasonTo {
		return c.HighSeason
	}
	return c.LowSeason
}

// SlotsForDate generates every candidate start time on the given date:
// for each range, successive instants from the range start stepping by
// the slot granularity while strictly inside the range.
func (c Calendar) SlotsForDate(date time.Time) []TimeOfDay {
	var slots []TimeOfDay
	for _, r := range c.RangesForDate(date) {
		for t := r.Start; t < r.End; t = t.Add(c.SlotMinutes) {
			slots = append(slots, t)
		}
	}
	return slots
}

// Fits reports whether a booking of the given duration starting at
// slot stays entirely inside one working range on that date. A booking
// that would straddle the midday break never fits, regardless of how
// free the day is.
func (c Calendar) Fits(slot TimeOfDay, durationMinutes int, date time.Time) bool {
	end := slot.Add(durationMinutes)
	for _, r := range c.RangesForDate(date) {
		if r.Contains(slot, end) {
			return true
		}
	}
	return false
}
