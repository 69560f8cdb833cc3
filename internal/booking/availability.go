package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/icarpio/marianoapi/internal/schedule"
)

// SlotView is one candidate start time in a day view. When no specific
// dentist was requested, DentistID/DentistName carry the first dentist
// found free at the slot, or nil when nobody is.
type SlotView struct {
	Time        schedule.TimeOfDay
	Available   bool
	DentistID   *uuid.UUID
	DentistName *string
}

// DayAvailability is one calendar day in a month view.
// AvailableSlotCount is exhaustive: the number of distinct slots with
// at least one free dentist, so it always agrees with the day view.
type DayAvailability struct {
	Date               time.Time
	HasAvailability    bool
	AvailableSlotCount int
}

// DaySlots returns every slot of the date with its availability for
// the service. With a dentist it answers for that dentist alone; with
// nil it merges all qualifying dentists, reporting the first one free
// per slot (deterministic for the repository's candidate order).
//
// Read path only: results may go stale the moment they are produced.
// Correctness lives in the write path, which re-validates under the
// booking transaction.
func (s *Scheduler) DaySlots(ctx context.Context, date time.Time, serviceID uuid.UUID, dentistID *uuid.UUID) ([]SlotView, error) {
	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if dentistID != nil {
		dentist, err := s.repo.GetDentistByID(ctx, *dentistID)
		if err != nil {
			return nil, err
		}
		return s.daySlotsSingle(ctx, date, svc, dentist)
	}
	return s.daySlotsMerged(ctx, date, svc)
}

func (s *Scheduler) daySlotsSingle(ctx context.Context, date time.Time, svc *Service, dentist *Dentist) ([]SlotView, error) {
	if !dentist.WorksOn(schedule.Weekday(date)) {
		return []SlotView{}, nil
	}
	if !dentist.Offers(svc.ID) {
		return []SlotView{}, nil
	}

	blocked, err := s.repo.BlockedBetween(ctx, date, date)
	if err != nil {
		return nil, fmt.Errorf("fetch blocked dates: %w", err)
	}
	if blocked.Blocked(dentist.ID, date) {
		return []SlotView{}, nil
	}

	busyByKey, err := s.repo.BusyIntervals(ctx, []uuid.UUID{dentist.ID}, date, date)
	if err != nil {
		return nil, fmt.Errorf("fetch busy intervals: %w", err)
	}
	busy := busyByKey[BusyKey{DentistID: dentist.ID, Date: DateKey(date)}]

	name := dentist.FullName()
	id := dentist.ID
	var views []SlotView
	for _, slot := range s.cal.SlotsForDate(date) {
		views = append(views, SlotView{
			Time:        slot,
			Available:   s.slotFree(slot, svc.DurationMinutes, date, busy),
			DentistID:   &id,
			DentistName: &name,
		})
	}
	return views, nil
}

func (s *Scheduler) daySlotsMerged(ctx context.Context, date time.Time, svc *Service) ([]SlotView, error) {
	candidates, err := s.repo.ListDentistsForService(ctx, &svc.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch dentists: %w", err)
	}

	weekday := schedule.Weekday(date)
	working := candidates[:0:0]
	for _, d := range candidates {
		if d.WorksOn(weekday) {
			working = append(working, d)
		}
	}
	if len(working) == 0 {
		return []SlotView{}, nil
	}

	ids := make([]uuid.UUID, len(working))
	for i, d := range working {
		ids[i] = d.ID
	}

	busyByKey, err := s.repo.BusyIntervals(ctx, ids, date, date)
	if err != nil {
		return nil, fmt.Errorf("fetch busy intervals: %w", err)
	}
	blocked, err := s.repo.BlockedBetween(ctx, date, date)
	if err != nil {
		return nil, fmt.Errorf("fetch blocked dates: %w", err)
	}

	var views []SlotView
	for _, slot := range s.cal.SlotsForDate(date) {
		view := SlotView{Time: slot}
		for i := range working {
			d := &working[i]
			if blocked.Blocked(d.ID, date) {
				continue
			}
			busy := busyByKey[BusyKey{DentistID: d.ID, Date: DateKey(date)}]
			if s.slotFree(slot, svc.DurationMinutes, date, busy) {
				name := d.FullName()
				view.Available = true
				view.DentistID = &d.ID
				view.DentistName = &name
				break
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// MonthAvailability answers "which days of the month still have room"
// in at most three repository operations regardless of month length or
// dentist count: candidates with schedules, all month appointments,
// all month blocked dates.
func (s *Scheduler) MonthAvailability(ctx context.Context, year int, month time.Month, serviceID uuid.UUID, dentistID *uuid.UUID) ([]DayAvailability, error) {
	if month < time.January || month > time.December || year < 1 {
		return nil, fmt.Errorf("%w: invalid year/month", ErrInvalidInput)
	}

	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	// Fetch 1: candidate dentists with weekly working-day sets.
	var dentists []Dentist
	if dentistID != nil {
		d, err := s.repo.GetDentistByID(ctx, *dentistID)
		if err != nil {
			return nil, err
		}
		if d.Offers(svc.ID) {
			dentists = []Dentist{*d}
		}
	} else {
		dentists, err = s.repo.ListDentistsForService(ctx, &svc.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch dentists: %w", err)
		}
	}

	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)
	numDays := monthEnd.Day()

	ids := make([]uuid.UUID, len(dentists))
	workingDays := make(map[uuid.UUID]map[int]bool, len(dentists))
	for i, d := range dentists {
		ids[i] = d.ID
		workingDays[d.ID] = d.WorkingDays()
	}

	// Fetch 2: every non-terminal appointment of the month, grouped
	// by (dentist, date).
	busyByKey := map[BusyKey][]BusyInterval{}
	if len(ids) > 0 {
		busyByKey, err = s.repo.BusyIntervals(ctx, ids, monthStart, monthEnd)
		if err != nil {
			return nil, fmt.Errorf("fetch busy intervals: %w", err)
		}
	}

	// Fetch 3: every blocked date of the month.
	blocked, err := s.repo.BlockedBetween(ctx, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("fetch blocked dates: %w", err)
	}

	today := truncateDate(s.now())

	result := make([]DayAvailability, 0, numDays)
	for day := 1; day <= numDays; day++ {
		date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)

		if date.Before(today) || blocked.ClinicBlocked(date) {
			result = append(result, DayAvailability{Date: date})
			continue
		}

		weekday := schedule.Weekday(date)
		count := 0
		for _, slot := range s.cal.SlotsForDate(date) {
			if !s.cal.Fits(slot, svc.DurationMinutes, date) {
				continue
			}
			for _, d := range dentists {
				if !workingDays[d.ID][weekday] {
					continue
				}
				if blocked.Blocked(d.ID, date) {
					continue
				}
				busy := busyByKey[BusyKey{DentistID: d.ID, Date: DateKey(date)}]
				if !overlapsAny(slot, slot.Add(svc.DurationMinutes), busy) {
					count++
					break // this slot is covered, move to the next
				}
			}
		}

		result = append(result, DayAvailability{
			Date:               date,
			HasAvailability:    count > 0,
			AvailableSlotCount: count,
		})
	}
	return result, nil
}

func (s *Scheduler) slotFree(slot schedule.TimeOfDay, durationMinutes int, date time.Time, busy []BusyInterval) bool {
	if !s.cal.Fits(slot, durationMinutes, date) {
		return false
	}
	return !overlapsAny(slot, slot.Add(durationMinutes), busy)
}

func overlapsAny(start, end schedule.TimeOfDay, busy []BusyInterval) bool {
	for _, b := range busy {
		if schedule.Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
