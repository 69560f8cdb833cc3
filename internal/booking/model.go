package booking

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/icarpio/marianoapi/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// NonTerminalStatuses are the statuses that still block the interval
// they occupy.
var NonTerminalStatuses = []Status{StatusPending, StatusConfirmed, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses admit no further transition and no time, dentist
// or service change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransition encodes the lifecycle: pending → confirmed →
// in_progress → completed on the forward path, with cancelled and
// no_show reachable from any non-terminal state.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusInProgress:
		return from == StatusPending || from == StatusConfirmed
	case StatusCompleted:
		return from == StatusInProgress
	case StatusCancelled, StatusNoShow:
		return true // from is already known non-terminal
	}
	return false
}

type Service struct {
	ID              uuid.UUID
	Name            string
	Description     string
	DurationMinutes int
	Price           *float64
	Color           string
	Active          bool
}

// SlotsRequired is how many granularity slots the service occupies.
func (s Service) SlotsRequired(slotMinutes int) int {
	if slotMinutes <= 0 {
		return 1
	}
	n := (s.DurationMinutes + slotMinutes - 1) / slotMinutes
	if n < 1 {
		n = 1
	}
	return n
}

// WorkSchedule is a dentist's working hours for one weekday
// (0=Monday .. 6=Sunday). At most one row per (dentist, weekday).
// The second range is optional and represents the afternoon shift of a
// split day; when present it starts after the first range ends.
type WorkSchedule struct {
	DentistID uuid.UUID
	Weekday   int
	Start     schedule.TimeOfDay
	End       schedule.TimeOfDay
	Start2    *schedule.TimeOfDay
	End2      *schedule.TimeOfDay
	Active    bool
}

type Dentist struct {
	ID         uuid.UUID
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Specialty  string
	Bio        string
	Active     bool
	ServiceIDs []uuid.UUID
	Schedules  []WorkSchedule
}

func (d Dentist) FullName() string {
	return fmt.Sprintf("Dr. %s %s", d.FirstName, d.LastName)
}

func (d Dentist) Offers(serviceID uuid.UUID) bool {
	for _, id := range d.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// WorksOn reports whether the dentist has an active schedule row for
// the given weekday.
func (d Dentist) WorksOn(weekday int) bool {
	for _, s := range d.Schedules {
		if s.Weekday == weekday && s.Active {
			return true
		}
	}
	return false
}

// WorkingDays returns the set of weekdays with an active schedule.
func (d Dentist) WorkingDays() map[int]bool {
	days := make(map[int]bool)
	for _, s := range d.Schedules {
		if s.Active {
			days[s.Weekday] = true
		}
	}
	return days
}

// BlockedDate marks a full day off: vacation, holiday, absence.
// A nil DentistID blocks the whole clinic that day.
type BlockedDate struct {
	ID        uuid.UUID
	DentistID *uuid.UUID
	Date      time.Time
	Reason    string
}

type Patient struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Notes     string
	CreatedAt time.Time
}

func (p Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	DentistID         uuid.UUID
	ServiceID         uuid.UUID
	Date              time.Time
	Start             schedule.TimeOfDay
	End               schedule.TimeOfDay // always Start + service duration
	Status            Status
	Notes             string
	InternalNotes     string
	ConfirmationToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
	Dentist *Dentist
	Service *Service
}

// BusyInterval is a half-open [Start,End) occupied by a non-terminal
// appointment.
type BusyInterval struct {
	Start schedule.TimeOfDay
	End   schedule.TimeOfDay
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// NewConfirmationToken mints the opaque patient-facing identifier for
// an appointment: 32 random bytes, URL-safe base64. Generated exactly
// once, at creation.
func NewConfirmationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DateKey normalizes a date to its canonical map key.
func DateKey(date time.Time) string {
	return date.Format("2006-01-02")
}
