package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icarpio/marianoapi/internal/metrics"
	redisclient "github.com/icarpio/marianoapi/internal/redis"
	"github.com/icarpio/marianoapi/internal/schedule"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventStatusChanged          = "APPOINTMENT_STATUS_CHANGED"
)

// Rejection reasons. Each validation step fails with its own sentinel
// so callers always learn the specific reason; none of these are
// retried automatically. Infrastructure failures (store down) are
// wrapped errors that match none of them.
var (
	ErrPastDate            = errors.New("date is in the past")
	ErrServiceNotOffered   = errors.New("dentist does not offer this service")
	ErrOutsideWorkingDay   = errors.New("dentist does not work that day of the week")
	ErrOutsideWorkingHours = errors.New("outside working hours for that date")
	ErrDateBlocked         = errors.New("date is blocked")
	ErrSlotConflict        = errors.New("slot already taken")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidInput        = errors.New("invalid input")
)

// Scheduler is the availability and booking engine. The read path
// (DaySlots, MonthAvailability) runs lock-free; the write path funnels
// every date/time/dentist/service change through validateBooking plus
// an atomic store operation, so the two paths can never disagree about
// what a valid slot is.
type Scheduler struct {
	repo   Repository
	locker redisclient.Locker
	cal    schedule.Calendar

	now          func() time.Time
	afterBooking func(ctx context.Context, appt *AppointmentDetail)
}

type Option func(*Scheduler)

// WithClock overrides the time source, so tests can pin "today".
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithAfterBooking registers a callback invoked after a booking
// commits. It runs outside the transaction; failures there cannot
// undo the booking.
func WithAfterBooking(fn func(ctx context.Context, appt *AppointmentDetail)) Option {
	return func(s *Scheduler) { s.afterBooking = fn }
}

func NewScheduler(repo Repository, locker redisclient.Locker, cal schedule.Calendar, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:   repo,
		locker: locker,
		cal:    cal,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	PatientName  string
	PatientEmail string
	PatientPhone string
	DentistID    uuid.UUID
	ServiceID    uuid.UUID
	Date         time.Time
	Start        schedule.TimeOfDay
	Notes        string
}

// CreateAppointment books a slot. It validates the request, then runs
// the insert inside a per slot distributed lock; the repository insert
// re-checks the overlap invariant inside its own transaction, so two
// racing requests for the same slot end with exactly one success and
// one ErrSlotConflict even if the lock expires mid-flight.
func (s *Scheduler) CreateAppointment(ctx context.Context, req CreateRequest) (*AppointmentDetail, error) {
	if req.PatientEmail == "" || req.PatientName == "" {
		return nil, fmt.Errorf("%w: patient name and email are required", ErrInvalidInput)
	}

	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	dentist, err := s.repo.GetDentistByID(ctx, req.DentistID)
	if err != nil {
		return nil, err
	}

	end, err := s.validateBooking(ctx, dentist, svc, req.Date, req.Start)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	var created *Appointment
	var patient *Patient

	lockKey := redisclient.SlotLockKey(dentist.ID, req.Date, int(req.Start))
	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		p, err := s.repo.FindOrCreatePatient(lockCtx, patientFromRequest(req))
		if err != nil {
			return fmt.Errorf("find or create patient: %w", err)
		}

		token, err := NewConfirmationToken()
		if err != nil {
			return err
		}

		appt := &Appointment{
			ID:                uuid.New(),
			PatientID:         p.ID,
			DentistID:         dentist.ID,
			ServiceID:         svc.ID,
			Date:              truncateDate(req.Date),
			Start:             req.Start,
			End:               end,
			Status:            StatusPending,
			Notes:             req.Notes,
			ConfirmationToken: token,
		}

		if err := s.repo.InsertIfFree(lockCtx, appt); err != nil {
			return err
		}

		created = appt
		patient = p
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			metrics.BookingsTotal.WithLabelValues("conflict").Inc()
			return nil, fmt.Errorf("%w: slot is being booked, retry shortly", ErrSlotConflict)
		}
		if errors.Is(err, ErrSlotConflict) {
			metrics.BookingsTotal.WithLabelValues("conflict").Inc()
			return nil, err
		}
		metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.BookingsTotal.WithLabelValues("created").Inc()

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"dentist_id": created.DentistID.String(),
		"service_id": created.ServiceID.String(),
		"date":       DateKey(created.Date),
		"start":      created.Start.String(),
	})

	detail := &AppointmentDetail{
		Appointment: *created,
		Patient:     patient,
		Dentist:     dentist,
		Service:     svc,
	}
	if s.afterBooking != nil {
		s.afterBooking(ctx, detail)
	}
	return detail, nil
}

type RescheduleRequest struct {
	DentistID *uuid.UUID // nil keeps the current dentist
	ServiceID *uuid.UUID // nil keeps the current service
	Date      time.Time
	Start     schedule.TimeOfDay
}

// Reschedule moves an appointment to a new slot. The full validation
// sequence runs again, exactly as on creation; terminal appointments
// cannot move.
func (s *Scheduler) Reschedule(ctx context.Context, token string, req RescheduleRequest) (*AppointmentDetail, error) {
	current, err := s.repo.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, current.Status)
	}

	dentistID := current.DentistID
	if req.DentistID != nil {
		dentistID = *req.DentistID
	}
	serviceID := current.ServiceID
	if req.ServiceID != nil {
		serviceID = *req.ServiceID
	}

	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	dentist, err := s.repo.GetDentistByID(ctx, dentistID)
	if err != nil {
		return nil, err
	}

	end, err := s.validateBooking(ctx, dentist, svc, req.Date, req.Start)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	moved := current.Appointment
	moved.DentistID = dentist.ID
	moved.ServiceID = svc.ID
	moved.Date = truncateDate(req.Date)
	moved.Start = req.Start
	moved.End = end

	lockKey := redisclient.SlotLockKey(dentist.ID, req.Date, int(req.Start))
	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		return s.repo.UpdateSlotIfFree(lockCtx, &moved)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			metrics.BookingsTotal.WithLabelValues("conflict").Inc()
			return nil, fmt.Errorf("%w: slot is being booked, retry shortly", ErrSlotConflict)
		}
		if errors.Is(err, ErrSlotConflict) {
			metrics.BookingsTotal.WithLabelValues("conflict").Inc()
		} else {
			metrics.BookingsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.BookingsTotal.WithLabelValues("rescheduled").Inc()
	s.logEvent(ctx, moved.ID, EventAppointmentRescheduled, map[string]any{
		"date":  DateKey(moved.Date),
		"start": moved.Start.String(),
	})

	return &AppointmentDetail{
		Appointment: moved,
		Patient:     current.Patient,
		Dentist:     dentist,
		Service:     svc,
	}, nil
}

// Cancel marks an appointment cancelled through its token.
// Cancellation is a status change, never a deletion; the row and its
// token survive for the audit trail.
func (s *Scheduler) Cancel(ctx context.Context, token string) (*AppointmentDetail, error) {
	return s.transition(ctx, token, StatusCancelled, nil)
}

// UpdateStatus applies a guarded lifecycle move, optionally patching
// the internal notes at the same time. An empty target status patches
// notes only.
func (s *Scheduler) UpdateStatus(ctx context.Context, token string, to Status, internalNotes *string) (*AppointmentDetail, error) {
	if to == "" {
		if internalNotes == nil {
			return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
		}
		current, err := s.repo.GetAppointmentByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		updated, err := s.repo.UpdateAppointmentStatus(ctx, current.ID, current.Status, current.Status, internalNotes)
		if err != nil {
			return nil, err
		}
		current.Appointment = *updated
		return current, nil
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}
	return s.transition(ctx, token, to, internalNotes)
}

func (s *Scheduler) transition(ctx context.Context, token string, to Status, internalNotes *string) (*AppointmentDetail, error) {
	current, err := s.repo.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, current.ID, current.Status, to, internalNotes)
	if err != nil {
		// CAS missed: someone moved the status in between.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"from": string(current.Status),
		"to":   string(to),
	})
	current.Appointment = *updated
	return current, nil
}

// MarkOverdueNoShows flags past non-terminal appointments as no_show.
// Called periodically by the agenda worker.
func (s *Scheduler) MarkOverdueNoShows(ctx context.Context) (int, error) {
	overdue, err := s.repo.FindOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range overdue {
		if !CanTransition(appt.Status, StatusNoShow) {
			continue
		}
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusNoShow, nil)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue // lost the CAS race, someone else handled it
			}
			log.Printf("failed to mark appointment %s as no_show: %v", appt.ID, err)
			continue
		}
		marked++
		metrics.StatusTransitions.WithLabelValues(string(StatusNoShow)).Inc()
		s.logEvent(ctx, appt.ID, EventStatusChanged, map[string]any{
			"from":   string(appt.Status),
			"to":     string(StatusNoShow),
			"reason": "worker",
		})
	}
	return marked, nil
}

// validateBooking runs the ordered rejection checks shared by create
// and reschedule. The overlap check is deliberately absent here: it
// belongs to the atomic insert/update so that check and write cannot
// be separated by a concurrent writer.
func (s *Scheduler) validateBooking(ctx context.Context, dentist *Dentist, svc *Service, date time.Time, start schedule.TimeOfDay) (schedule.TimeOfDay, error) {
	if svc.DurationMinutes <= 0 || svc.DurationMinutes%s.cal.SlotMinutes != 0 {
		return 0, fmt.Errorf("%w: service duration must be a positive multiple of %d minutes", ErrInvalidInput, s.cal.SlotMinutes)
	}

	day := truncateDate(date)
	if day.Before(truncateDate(s.now())) {
		return 0, ErrPastDate
	}
	if !dentist.Offers(svc.ID) {
		return 0, fmt.Errorf("%w: %s does not offer %q", ErrServiceNotOffered, dentist.FullName(), svc.Name)
	}
	if !dentist.WorksOn(schedule.Weekday(day)) {
		return 0, ErrOutsideWorkingDay
	}

	end := start.Add(svc.DurationMinutes)
	if !s.cal.Fits(start, svc.DurationMinutes, day) {
		ranges := s.cal.RangesForDate(day)
		parts := make([]string, len(ranges))
		for i, r := range ranges {
			parts[i] = fmt.Sprintf("%s-%s", r.Start, r.End)
		}
		return 0, fmt.Errorf("%w: working hours are %s", ErrOutsideWorkingHours, strings.Join(parts, " / "))
	}

	blocked, err := s.repo.BlockedBetween(ctx, day, day)
	if err != nil {
		return 0, fmt.Errorf("fetch blocked dates: %w", err)
	}
	if blocked.Blocked(dentist.ID, day) {
		return 0, ErrDateBlocked
	}

	return end, nil
}

// Catalog reads, thin passthroughs for the HTTP layer.

func (s *Scheduler) Services(ctx context.Context) ([]Service, error) {
	return s.repo.ListActiveServices(ctx)
}

func (s *Scheduler) ServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	return s.repo.GetServiceByID(ctx, id)
}

func (s *Scheduler) Dentists(ctx context.Context, serviceID *uuid.UUID) ([]Dentist, error) {
	return s.repo.ListDentistsForService(ctx, serviceID)
}

func (s *Scheduler) DentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	return s.repo.GetDentistByID(ctx, id)
}

func (s *Scheduler) GetByToken(ctx context.Context, token string) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentByToken(ctx, token)
}

func (s *Scheduler) PatientHistory(ctx context.Context, email string) ([]AppointmentDetail, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.repo.ListAppointmentsByPatientEmail(ctx, email)
}

// DentistAgenda lists one dentist's appointments for a day, cancelled
// ones excluded.
func (s *Scheduler) DentistAgenda(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]AppointmentDetail, error) {
	if _, err := s.repo.GetDentistByID(ctx, dentistID); err != nil {
		return nil, err
	}
	return s.repo.ListDayAppointments(ctx, dentistID, truncateDate(date))
}

func (s *Scheduler) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

func patientFromRequest(req CreateRequest) Patient {
	first, last := req.PatientName, ""
	if i := strings.IndexByte(req.PatientName, ' '); i > 0 {
		first, last = req.PatientName[:i], req.PatientName[i+1:]
	}
	return Patient{
		FirstName: first,
		LastName:  last,
		Email:     req.PatientEmail,
		Phone:     req.PatientPhone,
	}
}
