package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrDentistNotFound     = errors.New("dentist not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// BusyKey addresses one dentist's busy intervals on one date in a
// month-wide fetch.
type BusyKey struct {
	DentistID uuid.UUID
	Date      string // DateKey format
}

// BlockedSet is the result of one bulk blocked-date fetch.
type BlockedSet struct {
	Clinic  map[string]bool              // clinic-wide blocks by DateKey
	Dentist map[uuid.UUID]map[string]bool // per-dentist blocks by DateKey
}

func (b *BlockedSet) ClinicBlocked(date time.Time) bool {
	return b.Clinic[DateKey(date)]
}

// Blocked reports whether the dentist is unavailable on the date,
// either individually or because the whole clinic is closed.
func (b *BlockedSet) Blocked(dentistID uuid.UUID, date time.Time) bool {
	if b.ClinicBlocked(date) {
		return true
	}
	return b.Dentist[dentistID][DateKey(date)]
}

// Repository contains all DB interactions needed by the booking
// service and the availability engine.
type Repository interface {
	// Catalog reads
	GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error)
	ListActiveServices(ctx context.Context) ([]Service, error)
	GetDentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error)
	// ListDentistsForService returns active dentists offering the
	// service, hydrated with schedules and service sets, in a stable
	// order. A nil serviceID lists every active dentist.
	ListDentistsForService(ctx context.Context, serviceID *uuid.UUID) ([]Dentist, error)

	// Availability bulk reads. Each is a single round trip so the
	// month path stays at three data-access operations total.
	BusyIntervals(ctx context.Context, dentistIDs []uuid.UUID, from, to time.Time) (map[BusyKey][]BusyInterval, error)
	BlockedBetween(ctx context.Context, from, to time.Time) (*BlockedSet, error)

	// Appointment reads
	GetAppointmentByToken(ctx context.Context, token string) (*AppointmentDetail, error)
	ListAppointmentsByPatientEmail(ctx context.Context, email string) ([]AppointmentDetail, error)
	ListDayAppointments(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]AppointmentDetail, error)
	FindOverdue(ctx context.Context, now time.Time) ([]Appointment, error)

	// Writes
	FindOrCreatePatient(ctx context.Context, p Patient) (*Patient, error)
	// InsertIfFree atomically re-checks the overlap invariant and
	// inserts; returns ErrSlotConflict when the interval is taken.
	InsertIfFree(ctx context.Context, appt *Appointment) error
	// UpdateSlotIfFree atomically moves an existing appointment to a
	// new (dentist, service, date, start), excluding itself from the
	// overlap check.
	UpdateSlotIfFree(ctx context.Context, appt *Appointment) error
	// UpdateAppointmentStatus is a compare-and-set on the current
	// status; a nil internalNotes leaves the notes untouched.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, internalNotes *string) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
