package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/icarpio/marianoapi/internal/schedule"
)

// The clock is pinned to a winter Friday so "today", season and
// weekday arithmetic are all deterministic.
var (
	fixedNow   = time.Date(2026, time.January, 2, 12, 0, 0, 0, time.UTC) // Friday
	bookingDay = time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)  // Monday, split winter hours
)

type fixture struct {
	repo      *fakeRepo
	scheduler *Scheduler

	cleaning  Service // 30 min, offered by both dentists
	rootCanal Service // 60 min, Garcia only

	garcia Dentist // works Mon-Fri
	lopez  Dentist // works Mon and Wed only
}

func winterSchedule(dentistID uuid.UUID, weekdays ...int) []WorkSchedule {
	var out []WorkSchedule
	for _, wd := range weekdays {
		start2, end2 := schedule.At(16, 0), schedule.At(20, 0)
		out = append(out, WorkSchedule{
			DentistID: dentistID,
			Weekday:   wd,
			Start:     schedule.At(10, 0),
			End:       schedule.At(14, 0),
			Start2:    &start2,
			End2:      &end2,
			Active:    true,
		})
	}
	return out
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{repo: newFakeRepo()}

	f.cleaning = Service{ID: uuid.New(), Name: "Dental Cleaning", DurationMinutes: 30, Active: true}
	f.rootCanal = Service{ID: uuid.New(), Name: "Root Canal", DurationMinutes: 60, Active: true}
	f.repo.services = []Service{f.cleaning, f.rootCanal}

	f.garcia = Dentist{
		ID:         uuid.New(),
		FirstName:  "Ana",
		LastName:   "Garcia",
		Active:     true,
		ServiceIDs: []uuid.UUID{f.cleaning.ID, f.rootCanal.ID},
	}
	f.garcia.Schedules = winterSchedule(f.garcia.ID, 0, 1, 2, 3, 4)

	f.lopez = Dentist{
		ID:         uuid.New(),
		FirstName:  "Luis",
		LastName:   "Lopez",
		Active:     true,
		ServiceIDs: []uuid.UUID{f.cleaning.ID},
	}
	f.lopez.Schedules = winterSchedule(f.lopez.ID, 0, 2)

	f.repo.dentists = []Dentist{f.garcia, f.lopez}

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	f.scheduler = NewScheduler(f.repo, nopLocker{}, schedule.Default(), opts...)
	return f
}

func (f *fixture) book(t *testing.T, dentist Dentist, svc Service, date time.Time, start schedule.TimeOfDay) *AppointmentDetail {
	t.Helper()
	detail, err := f.scheduler.CreateAppointment(context.Background(), CreateRequest{
		PatientName:  "Maria Perez",
		PatientEmail: "maria@example.com",
		DentistID:    dentist.ID,
		ServiceID:    svc.ID,
		Date:         date,
		Start:        start,
	})
	require.NoError(t, err)
	return detail
}

// seedAppointment plants a row directly in the store, bypassing
// validation, for lifecycle and worker tests.
func (f *fixture) seedAppointment(t *testing.T, dentist Dentist, svc Service, date time.Time, start schedule.TimeOfDay, status Status) *Appointment {
	t.Helper()
	token, err := NewConfirmationToken()
	require.NoError(t, err)

	patient := &Patient{ID: uuid.New(), FirstName: "Seeded", LastName: "Patient", Email: token[:8] + "@example.com"}
	f.repo.patients = append(f.repo.patients, patient)

	appt := &Appointment{
		ID:                uuid.New(),
		PatientID:         patient.ID,
		DentistID:         dentist.ID,
		ServiceID:         svc.ID,
		Date:              date,
		Start:             start,
		End:               start.Add(svc.DurationMinutes),
		Status:            status,
		ConfirmationToken: token,
	}
	f.repo.appointments = append(f.repo.appointments, appt)
	return appt
}
