package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository. The mutex makes InsertIfFree
// and UpdateSlotIfFree check-and-write atomically, mirroring the
// transactional guarantee of the Postgres implementation.
type fakeRepo struct {
	mu           sync.Mutex
	services     []Service
	dentists     []Dentist
	blocked      []BlockedDate
	appointments []*Appointment
	patients     []*Patient
	events       []EventLog
	calls        map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{calls: make(map[string]int)}
}

func (f *fakeRepo) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeRepo) GetServiceByID(_ context.Context, id uuid.UUID) (*Service, error) {
	f.count("GetServiceByID")
	for _, s := range f.services {
		if s.ID == id && s.Active {
			out := s
			return &out, nil
		}
	}
	return nil, ErrServiceNotFound
}

func (f *fakeRepo) ListActiveServices(_ context.Context) ([]Service, error) {
	f.count("ListActiveServices")
	var out []Service
	for _, s := range f.services {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetDentistByID(_ context.Context, id uuid.UUID) (*Dentist, error) {
	f.count("GetDentistByID")
	for _, d := range f.dentists {
		if d.ID == id && d.Active {
			out := d
			return &out, nil
		}
	}
	return nil, ErrDentistNotFound
}

func (f *fakeRepo) ListDentistsForService(_ context.Context, serviceID *uuid.UUID) ([]Dentist, error) {
	f.count("ListDentistsForService")
	var out []Dentist
	for _, d := range f.dentists {
		if !d.Active {
			continue
		}
		if serviceID != nil && !d.Offers(*serviceID) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeRepo) BusyIntervals(_ context.Context, dentistIDs []uuid.UUID, from, to time.Time) (map[BusyKey][]BusyInterval, error) {
	f.count("BusyIntervals")
	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[uuid.UUID]bool, len(dentistIDs))
	for _, id := range dentistIDs {
		wanted[id] = true
	}

	out := make(map[BusyKey][]BusyInterval)
	for _, a := range f.appointments {
		if a.Status.Terminal() || !wanted[a.DentistID] {
			continue
		}
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		key := BusyKey{DentistID: a.DentistID, Date: DateKey(a.Date)}
		out[key] = append(out[key], BusyInterval{Start: a.Start, End: a.End})
	}
	return out, nil
}

func (f *fakeRepo) BlockedBetween(_ context.Context, from, to time.Time) (*BlockedSet, error) {
	f.count("BlockedBetween")
	set := &BlockedSet{
		Clinic:  make(map[string]bool),
		Dentist: make(map[uuid.UUID]map[string]bool),
	}
	for _, b := range f.blocked {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		if b.DentistID == nil {
			set.Clinic[DateKey(b.Date)] = true
			continue
		}
		if set.Dentist[*b.DentistID] == nil {
			set.Dentist[*b.DentistID] = make(map[string]bool)
		}
		set.Dentist[*b.DentistID][DateKey(b.Date)] = true
	}
	return set, nil
}

func (f *fakeRepo) detail(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	for _, p := range f.patients {
		if p.ID == a.PatientID {
			cp := *p
			d.Patient = &cp
		}
	}
	for _, den := range f.dentists {
		if den.ID == a.DentistID {
			cp := den
			d.Dentist = &cp
		}
	}
	for _, s := range f.services {
		if s.ID == a.ServiceID {
			cp := s
			d.Service = &cp
		}
	}
	return d
}

func (f *fakeRepo) GetAppointmentByToken(_ context.Context, token string) (*AppointmentDetail, error) {
	f.count("GetAppointmentByToken")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.ConfirmationToken == token {
			d := f.detail(*a)
			return &d, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) ListAppointmentsByPatientEmail(_ context.Context, email string) ([]AppointmentDetail, error) {
	f.count("ListAppointmentsByPatientEmail")
	f.mu.Lock()
	defer f.mu.Unlock()

	var patientID uuid.UUID
	found := false
	for _, p := range f.patients {
		if p.Email == email {
			patientID = p.ID
			found = true
		}
	}
	out := []AppointmentDetail{}
	if !found {
		return out, nil
	}
	for _, a := range f.appointments {
		if a.PatientID == patientID {
			out = append(out, f.detail(*a))
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDayAppointments(_ context.Context, dentistID uuid.UUID, date time.Time) ([]AppointmentDetail, error) {
	f.count("ListDayAppointments")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []AppointmentDetail{}
	for _, a := range f.appointments {
		if a.DentistID == dentistID && DateKey(a.Date) == DateKey(date) && a.Status != StatusCancelled {
			out = append(out, f.detail(*a))
		}
	}
	return out, nil
}

func (f *fakeRepo) FindOverdue(_ context.Context, now time.Time) ([]Appointment, error) {
	f.count("FindOverdue")
	f.mu.Lock()
	defer f.mu.Unlock()

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	minutes := now.Hour()*60 + now.Minute()

	var out []Appointment
	for _, a := range f.appointments {
		if a.Status.Terminal() {
			continue
		}
		if a.Date.Before(today) || (DateKey(a.Date) == DateKey(today) && int(a.End) <= minutes) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindOrCreatePatient(_ context.Context, p Patient) (*Patient, error) {
	f.count("FindOrCreatePatient")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.patients {
		if existing.Email == p.Email {
			out := *existing
			return &out, nil
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	stored := p
	f.patients = append(f.patients, &stored)
	out := stored
	return &out, nil
}

func (f *fakeRepo) overlapLocked(appt *Appointment, exclude uuid.UUID) bool {
	for _, a := range f.appointments {
		if a.ID == exclude || a.Status.Terminal() {
			continue
		}
		if a.DentistID != appt.DentistID || DateKey(a.Date) != DateKey(appt.Date) {
			continue
		}
		if a.Start < appt.End && a.End > appt.Start {
			return true
		}
	}
	return false
}

func (f *fakeRepo) InsertIfFree(_ context.Context, appt *Appointment) error {
	f.count("InsertIfFree")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overlapLocked(appt, uuid.Nil) {
		return ErrSlotConflict
	}
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	stored := *appt
	f.appointments = append(f.appointments, &stored)
	return nil
}

func (f *fakeRepo) UpdateSlotIfFree(_ context.Context, appt *Appointment) error {
	f.count("UpdateSlotIfFree")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overlapLocked(appt, appt.ID) {
		return ErrSlotConflict
	}
	for _, a := range f.appointments {
		if a.ID == appt.ID {
			a.DentistID = appt.DentistID
			a.ServiceID = appt.ServiceID
			a.Date = appt.Date
			a.Start = appt.Start
			a.End = appt.End
			a.UpdatedAt = time.Now()
			appt.UpdatedAt = a.UpdatedAt
			return nil
		}
	}
	return ErrAppointmentNotFound
}

func (f *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status, internalNotes *string) (*Appointment, error) {
	f.count("UpdateAppointmentStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.ID == id && a.Status == from {
			a.Status = to
			if internalNotes != nil {
				a.InternalNotes = *internalNotes
			}
			a.UpdatedAt = time.Now()
			out := *a
			return &out, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	f.count("InsertEvent")
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return nil
}

// nopLocker runs the critical section directly; lock behavior has its
// own tests against a real Redis.
type nopLocker struct{}

func (nopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
