package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarpio/marianoapi/internal/schedule"
)

func TestDaySlotsSingleDentistAllFree(t *testing.T) {
	f := newFixture(t)

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, &f.garcia.ID)
	require.NoError(t, err)
	require.Len(t, views, 16)

	for _, v := range views {
		assert.True(t, v.Available, "slot %s", v.Time)
		require.NotNil(t, v.DentistID)
		assert.Equal(t, f.garcia.ID, *v.DentistID)
		require.NotNil(t, v.DentistName)
		assert.Equal(t, "Dr. Ana Garcia", *v.DentistName)
	}
	assert.Equal(t, schedule.At(10, 0), views[0].Time)
	assert.Equal(t, schedule.At(16, 0), views[8].Time)
}

func TestDaySlotsUnknownService(t *testing.T) {
	f := newFixture(t)

	_, err := f.scheduler.DaySlots(context.Background(), bookingDay, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestDaySlotsUnknownDentist(t *testing.T) {
	f := newFixture(t)

	unknown := uuid.New()
	_, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, &unknown)
	assert.ErrorIs(t, err, ErrDentistNotFound)
}

func TestDaySlotsOffDayIsEmpty(t *testing.T) {
	f := newFixture(t)

	// Lopez only works Monday and Wednesday.
	tuesday := bookingDay.AddDate(0, 0, 1)
	views, err := f.scheduler.DaySlots(context.Background(), tuesday, f.cleaning.ID, &f.lopez.ID)
	require.NoError(t, err)
	assert.Empty(t, views)

	// Sunday: nobody works, merged view is empty too.
	sunday := bookingDay.AddDate(0, 0, 6)
	views, err = f.scheduler.DaySlots(context.Background(), sunday, f.cleaning.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDaySlotsServiceNotOfferedIsEmpty(t *testing.T) {
	f := newFixture(t)

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.rootCanal.ID, &f.lopez.ID)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDaySlotsBlockedDate(t *testing.T) {
	f := newFixture(t)
	f.repo.blocked = append(f.repo.blocked, BlockedDate{
		ID: uuid.New(), DentistID: &f.garcia.ID, Date: bookingDay, Reason: "vacation",
	})

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, &f.garcia.ID)
	require.NoError(t, err)
	assert.Empty(t, views)

	// Merged view still returns the grid; Garcia is skipped, Lopez
	// covers the slots.
	views, err = f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, nil)
	require.NoError(t, err)
	require.Len(t, views, 16)
	for _, v := range views {
		assert.True(t, v.Available)
		require.NotNil(t, v.DentistID)
		assert.Equal(t, f.lopez.ID, *v.DentistID)
	}
}

func TestDaySlotsClinicWideBlock(t *testing.T) {
	f := newFixture(t)
	f.repo.blocked = append(f.repo.blocked, BlockedDate{
		ID: uuid.New(), DentistID: nil, Date: bookingDay, Reason: "holiday",
	})

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, nil)
	require.NoError(t, err)
	require.Len(t, views, 16)
	for _, v := range views {
		assert.False(t, v.Available)
		assert.Nil(t, v.DentistID)
	}
}

func TestDaySlotsAfterBooking(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.garcia, f.cleaning, bookingDay, schedule.At(10, 0))

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, &f.garcia.ID)
	require.NoError(t, err)
	require.Len(t, views, 16)
	assert.False(t, views[0].Available, "10:00 is booked")
	assert.True(t, views[1].Available, "10:30 is free")
}

func TestDaySlotsLongServiceDurationAware(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.garcia, f.cleaning, bookingDay, schedule.At(11, 0))

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.rootCanal.ID, &f.garcia.ID)
	require.NoError(t, err)
	require.Len(t, views, 16)

	byTime := make(map[schedule.TimeOfDay]SlotView, len(views))
	for _, v := range views {
		byTime[v.Time] = v
	}
	// A 60-minute service starting at 10:30 would run into the 11:00
	// booking; starting at 13:30 it would straddle the midday break.
	assert.True(t, byTime[schedule.At(10, 0)].Available)
	assert.False(t, byTime[schedule.At(10, 30)].Available)
	assert.False(t, byTime[schedule.At(11, 0)].Available)
	assert.True(t, byTime[schedule.At(11, 30)].Available)
	assert.False(t, byTime[schedule.At(13, 30)].Available)
	assert.True(t, byTime[schedule.At(19, 0)].Available)
	assert.False(t, byTime[schedule.At(19, 30)].Available)
}

func TestDaySlotsMergedFirstFreeDentist(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.garcia, f.cleaning, bookingDay, schedule.At(10, 0))

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, nil)
	require.NoError(t, err)
	require.Len(t, views, 16)

	// Garcia is busy at 10:00, so the slot falls to Lopez; at 10:30
	// Garcia is first in candidate order and free.
	require.True(t, views[0].Available)
	assert.Equal(t, f.lopez.ID, *views[0].DentistID)
	require.True(t, views[1].Available)
	assert.Equal(t, f.garcia.ID, *views[1].DentistID)

	// Same query, same answer.
	again, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, views, again)
}

func TestMonthAvailabilityThreeFetches(t *testing.T) {
	f := newFixture(t)
	f.repo.calls = map[string]int{}

	days, err := f.scheduler.MonthAvailability(context.Background(), 2026, time.January, f.cleaning.ID, nil)
	require.NoError(t, err)
	require.Len(t, days, 31)

	assert.Equal(t, 1, f.repo.calls["ListDentistsForService"])
	assert.Equal(t, 1, f.repo.calls["BusyIntervals"])
	assert.Equal(t, 1, f.repo.calls["BlockedBetween"])
}

func TestMonthAvailabilityShape(t *testing.T) {
	f := newFixture(t)

	days, err := f.scheduler.MonthAvailability(context.Background(), 2026, time.January, f.cleaning.ID, nil)
	require.NoError(t, err)
	require.Len(t, days, 31)

	// Jan 1 is in the past relative to the pinned clock.
	assert.False(t, days[0].HasAvailability)
	assert.Zero(t, days[0].AvailableSlotCount)

	// Jan 2, "today", is a working Friday for Garcia.
	assert.True(t, days[1].HasAvailability)
	assert.Equal(t, 16, days[1].AvailableSlotCount)

	// Jan 3/4 are the weekend: nobody works.
	assert.False(t, days[2].HasAvailability)
	assert.False(t, days[3].HasAvailability)

	// Jan 5, Monday: both dentists work, the count is per slot, not
	// per dentist.
	assert.True(t, days[4].HasAvailability)
	assert.Equal(t, 16, days[4].AvailableSlotCount)
}

func TestMonthAvailabilityClinicBlocked(t *testing.T) {
	f := newFixture(t)
	blockedDay := time.Date(2026, time.January, 7, 0, 0, 0, 0, time.UTC) // Wednesday
	f.repo.blocked = append(f.repo.blocked, BlockedDate{ID: uuid.New(), Date: blockedDay, Reason: "holiday"})

	days, err := f.scheduler.MonthAvailability(context.Background(), 2026, time.January, f.cleaning.ID, nil)
	require.NoError(t, err)
	assert.False(t, days[6].HasAvailability)
	assert.Zero(t, days[6].AvailableSlotCount)
	assert.True(t, days[7].HasAvailability, "the next day is unaffected")
}

func TestMonthAvailabilityDentistFilter(t *testing.T) {
	f := newFixture(t)

	days, err := f.scheduler.MonthAvailability(context.Background(), 2026, time.January, f.cleaning.ID, &f.lopez.ID)
	require.NoError(t, err)

	for _, d := range days {
		wd := schedule.Weekday(d.Date)
		if d.Date.Before(fixedNow) {
			assert.False(t, d.HasAvailability, "%s is past", DateKey(d.Date))
			continue
		}
		if wd == 0 || wd == 2 {
			assert.True(t, d.HasAvailability, "%s is a Lopez working day", DateKey(d.Date))
		} else {
			assert.False(t, d.HasAvailability, "%s is off for Lopez", DateKey(d.Date))
		}
	}

	// A dentist who does not offer the service yields an empty month.
	days, err = f.scheduler.MonthAvailability(context.Background(), 2026, time.January, f.rootCanal.ID, &f.lopez.ID)
	require.NoError(t, err)
	for _, d := range days {
		assert.False(t, d.HasAvailability)
	}
}

func TestMonthAvailabilityInvalidMonth(t *testing.T) {
	f := newFixture(t)

	_, err := f.scheduler.MonthAvailability(context.Background(), 2026, time.Month(13), f.cleaning.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// The month view promises to agree with the day view: for any day, the
// count equals the number of available slots a day query would return.
func TestMonthDayConsistency(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.garcia, f.cleaning, bookingDay, schedule.At(10, 0))
	f.seedAppointment(t, f.lopez, f.cleaning, bookingDay, schedule.At(10, 0), StatusConfirmed)
	f.seedAppointment(t, f.garcia, f.cleaning, bookingDay.AddDate(0, 0, 1), schedule.At(16, 0), StatusPending)

	days, err := f.scheduler.MonthAvailability(context.Background(), 2026, time.January, f.cleaning.ID, nil)
	require.NoError(t, err)

	for _, probe := range []time.Time{bookingDay, bookingDay.AddDate(0, 0, 1)} {
		views, err := f.scheduler.DaySlots(context.Background(), probe, f.cleaning.ID, nil)
		require.NoError(t, err)

		free := 0
		for _, v := range views {
			if v.Available {
				free++
			}
		}
		assert.Equal(t, free, days[probe.Day()-1].AvailableSlotCount, "day %s", DateKey(probe))
	}

	// Jan 5: both dentists booked at 10:00, so exactly one slot lost.
	assert.Equal(t, 15, days[bookingDay.Day()-1].AvailableSlotCount)
}

func TestBusyIntervalsExcludeTerminal(t *testing.T) {
	f := newFixture(t)
	f.seedAppointment(t, f.garcia, f.cleaning, bookingDay, schedule.At(10, 0), StatusCancelled)
	f.seedAppointment(t, f.garcia, f.cleaning, bookingDay, schedule.At(10, 30), StatusNoShow)
	f.seedAppointment(t, f.garcia, f.cleaning, bookingDay, schedule.At(11, 0), StatusCompleted)

	views, err := f.scheduler.DaySlots(context.Background(), bookingDay, f.cleaning.ID, &f.garcia.ID)
	require.NoError(t, err)
	for _, v := range views {
		assert.True(t, v.Available, "terminal appointments free their slot (%s)", v.Time)
	}
}
