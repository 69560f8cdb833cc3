package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/icarpio/marianoapi/internal/schedule"
)

// DB is the subset of pgxpool.Pool the repository needs. Declared as
// an interface so tests can substitute a pgxmock pool.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func nonTerminalStrings() []string {
	out := make([]string, len(NonTerminalStatuses))
	for i, s := range NonTerminalStatuses {
		out[i] = string(s)
	}
	return out
}

// Helpers

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.DurationMinutes,
		&s.Price,
		&s.Color,
		&s.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end int
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DentistID,
		&a.ServiceID,
		&a.Date,
		&start,
		&end,
		&a.Status,
		&a.Notes,
		&a.InternalNotes,
		&a.ConfirmationToken,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Start = schedule.TimeOfDay(start)
	a.End = schedule.TimeOfDay(end)
	return &a, nil
}

const appointmentColumns = `
	a.id, a.patient_id, a.dentist_id, a.service_id, a.date,
	a.start_min, a.end_min, a.status, a.notes, a.internal_notes,
	a.confirmation_token, a.created_at, a.updated_at`

// Catalog reads

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, duration_minutes, price, color, is_active
		FROM services
		WHERE id = $1 AND is_active
	`, id)
	return scanService(row)
}

func (r *PgRepository) ListActiveServices(ctx context.Context) ([]Service, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, duration_minutes, price, color, is_active
		FROM services
		WHERE is_active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetDentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, first_name, last_name, email, phone, specialty, bio, is_active
		FROM dentists
		WHERE id = $1 AND is_active
	`, id)
	if err != nil {
		return nil, err
	}
	dentists, err := r.collectDentists(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(dentists) == 0 {
		return nil, ErrDentistNotFound
	}
	return &dentists[0], nil
}

func (r *PgRepository) ListDentistsForService(ctx context.Context, serviceID *uuid.UUID) ([]Dentist, error) {
	var rows pgx.Rows
	var err error
	if serviceID != nil {
		rows, err = r.db.Query(ctx, `
			SELECT d.id, d.first_name, d.last_name, d.email, d.phone, d.specialty, d.bio, d.is_active
			FROM dentists d
			JOIN dentist_services ds ON ds.dentist_id = d.id
			WHERE ds.service_id = $1 AND d.is_active
			ORDER BY d.last_name, d.first_name
		`, *serviceID)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT id, first_name, last_name, email, phone, specialty, bio, is_active
			FROM dentists
			WHERE is_active
			ORDER BY last_name, first_name
		`)
	}
	if err != nil {
		return nil, err
	}
	return r.collectDentists(ctx, rows)
}

// collectDentists reads the dentist rows then hydrates schedules and
// offered-service sets with two follow-up bulk queries.
func (r *PgRepository) collectDentists(ctx context.Context, rows pgx.Rows) ([]Dentist, error) {
	defer rows.Close()

	var dentists []Dentist
	for rows.Next() {
		var d Dentist
		if err := rows.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.Specialty, &d.Bio, &d.Active); err != nil {
			return nil, err
		}
		dentists = append(dentists, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dentists) == 0 {
		return dentists, nil
	}

	ids := make([]uuid.UUID, len(dentists))
	index := make(map[uuid.UUID]*Dentist, len(dentists))
	for i := range dentists {
		ids[i] = dentists[i].ID
		index[dentists[i].ID] = &dentists[i]
	}

	schedRows, err := r.db.Query(ctx, `
		SELECT dentist_id, day_of_week, start_min, end_min, start2_min, end2_min, is_active
		FROM work_schedules
		WHERE dentist_id = ANY($1)
		ORDER BY dentist_id, day_of_week
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch work schedules: %w", err)
	}
	defer schedRows.Close()
	for schedRows.Next() {
		var ws WorkSchedule
		var start, end int
		var start2, end2 *int
		if err := schedRows.Scan(&ws.DentistID, &ws.Weekday, &start, &end, &start2, &end2, &ws.Active); err != nil {
			return nil, err
		}
		ws.Start = schedule.TimeOfDay(start)
		ws.End = schedule.TimeOfDay(end)
		if start2 != nil && end2 != nil {
			s2, e2 := schedule.TimeOfDay(*start2), schedule.TimeOfDay(*end2)
			ws.Start2, ws.End2 = &s2, &e2
		}
		if d := index[ws.DentistID]; d != nil {
			d.Schedules = append(d.Schedules, ws)
		}
	}
	if err := schedRows.Err(); err != nil {
		return nil, err
	}

	svcRows, err := r.db.Query(ctx, `
		SELECT dentist_id, service_id
		FROM dentist_services
		WHERE dentist_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch dentist services: %w", err)
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var dentistID, svcID uuid.UUID
		if err := svcRows.Scan(&dentistID, &svcID); err != nil {
			return nil, err
		}
		if d := index[dentistID]; d != nil {
			d.ServiceIDs = append(d.ServiceIDs, svcID)
		}
	}
	return dentists, svcRows.Err()
}

// Availability bulk reads

func (r *PgRepository) BusyIntervals(ctx context.Context, dentistIDs []uuid.UUID, from, to time.Time) (map[BusyKey][]BusyInterval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dentist_id, date, start_min, end_min
		FROM appointments
		WHERE dentist_id = ANY($1)
		  AND date BETWEEN $2 AND $3
		  AND status = ANY($4)
	`, dentistIDs, from, to, nonTerminalStrings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[BusyKey][]BusyInterval)
	for rows.Next() {
		var dentistID uuid.UUID
		var date time.Time
		var start, end int
		if err := rows.Scan(&dentistID, &date, &start, &end); err != nil {
			return nil, err
		}
		key := BusyKey{DentistID: dentistID, Date: DateKey(date)}
		result[key] = append(result[key], BusyInterval{
			Start: schedule.TimeOfDay(start),
			End:   schedule.TimeOfDay(end),
		})
	}
	return result, rows.Err()
}

func (r *PgRepository) BlockedBetween(ctx context.Context, from, to time.Time) (*BlockedSet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dentist_id, date
		FROM blocked_dates
		WHERE date BETWEEN $1 AND $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := &BlockedSet{
		Clinic:  make(map[string]bool),
		Dentist: make(map[uuid.UUID]map[string]bool),
	}
	for rows.Next() {
		var dentistID *uuid.UUID
		var date time.Time
		if err := rows.Scan(&dentistID, &date); err != nil {
			return nil, err
		}
		if dentistID == nil {
			set.Clinic[DateKey(date)] = true
			continue
		}
		if set.Dentist[*dentistID] == nil {
			set.Dentist[*dentistID] = make(map[string]bool)
		}
		set.Dentist[*dentistID][DateKey(date)] = true
	}
	return set, rows.Err()
}

// Appointment reads

func (r *PgRepository) GetAppointmentByToken(ctx context.Context, token string) (*AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`,
		       p.first_name, p.last_name, p.email, p.phone,
		       d.first_name, d.last_name, d.specialty,
		       s.name, s.description, s.duration_minutes, s.price, s.color
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN dentists d ON d.id = a.dentist_id
		JOIN services s ON s.id = a.service_id
		WHERE a.confirmation_token = $1
	`, token)
	if err != nil {
		return nil, err
	}
	details, err := collectDetails(rows)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &details[0], nil
}

func (r *PgRepository) ListAppointmentsByPatientEmail(ctx context.Context, email string) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`,
		       p.first_name, p.last_name, p.email, p.phone,
		       d.first_name, d.last_name, d.specialty,
		       s.name, s.description, s.duration_minutes, s.price, s.color
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN dentists d ON d.id = a.dentist_id
		JOIN services s ON s.id = a.service_id
		WHERE p.email = $1
		ORDER BY a.date DESC, a.start_min DESC
	`, email)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListDayAppointments(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`,
		       p.first_name, p.last_name, p.email, p.phone,
		       d.first_name, d.last_name, d.specialty,
		       s.name, s.description, s.duration_minutes, s.price, s.color
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN dentists d ON d.id = a.dentist_id
		JOIN services s ON s.id = a.service_id
		WHERE a.dentist_id = $1 AND a.date = $2 AND a.status <> 'cancelled'
		ORDER BY a.start_min
	`, dentistID, date)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var a Appointment
		var start, end int
		var p Patient
		var d Dentist
		var s Service
		err := rows.Scan(
			&a.ID, &a.PatientID, &a.DentistID, &a.ServiceID, &a.Date,
			&start, &end, &a.Status, &a.Notes, &a.InternalNotes,
			&a.ConfirmationToken, &a.CreatedAt, &a.UpdatedAt,
			&p.FirstName, &p.LastName, &p.Email, &p.Phone,
			&d.FirstName, &d.LastName, &d.Specialty,
			&s.Name, &s.Description, &s.DurationMinutes, &s.Price, &s.Color,
		)
		if err != nil {
			return nil, err
		}
		a.Start = schedule.TimeOfDay(start)
		a.End = schedule.TimeOfDay(end)
		p.ID = a.PatientID
		d.ID = a.DentistID
		s.ID = a.ServiceID
		s.Active = true
		result = append(result, AppointmentDetail{
			Appointment: a,
			Patient:     &p,
			Dentist:     &d,
			Service:     &s,
		})
	}
	return result, rows.Err()
}

func (r *PgRepository) FindOverdue(ctx context.Context, now time.Time) ([]Appointment, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	minutes := now.Hour()*60 + now.Minute()

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.status = ANY($1)
		  AND (a.date < $2 OR (a.date = $2 AND a.end_min <= $3))
	`, nonTerminalStrings(), day, minutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// Writes

func (r *PgRepository) FindOrCreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	// The no-op conflict update makes RETURNING yield the existing
	// row instead of nothing.
	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, email, phone, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, '', now())
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, first_name, last_name, email, phone, notes, created_at
	`, uuid.New(), p.FirstName, p.LastName, p.Email, p.Phone)

	var out Patient
	if err := row.Scan(&out.ID, &out.FirstName, &out.LastName, &out.Email, &out.Phone, &out.Notes, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// InsertIfFree takes an advisory transaction lock on (dentist, date),
// re-checks the overlap invariant and inserts, all in one transaction.
// The exclusion constraint on the table backs this up: even a writer
// that somehow skips the lock cannot commit an overlapping row.
func (r *PgRepository) InsertIfFree(ctx context.Context, appt *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDentistDay(ctx, tx, appt.DentistID, appt.Date); err != nil {
		return err
	}

	taken, err := overlapExists(ctx, tx, appt, uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		return ErrSlotConflict
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, dentist_id, service_id, date, start_min, end_min,
			 status, notes, internal_notes, confirmation_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', $10, now(), now())
		RETURNING created_at, updated_at
	`, appt.ID, appt.PatientID, appt.DentistID, appt.ServiceID, appt.Date,
		int(appt.Start), int(appt.End), string(appt.Status), appt.Notes, appt.ConfirmationToken)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return asSlotConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateSlotIfFree(ctx context.Context, appt *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDentistDay(ctx, tx, appt.DentistID, appt.Date); err != nil {
		return err
	}

	taken, err := overlapExists(ctx, tx, appt, appt.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrSlotConflict
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET dentist_id = $2,
		    service_id = $3,
		    date       = $4,
		    start_min  = $5,
		    end_min    = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, appt.ID, appt.DentistID, appt.ServiceID, appt.Date, int(appt.Start), int(appt.End))

	if err := row.Scan(&appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return asSlotConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reschedule tx: %w", err)
	}
	return nil
}

func lockDentistDay(ctx context.Context, tx pgx.Tx, dentistID uuid.UUID, date time.Time) error {
	key := dentistID.String() + ":" + DateKey(date)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	return nil
}

func overlapExists(ctx context.Context, tx pgx.Tx, appt *Appointment, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE dentist_id = $1
			  AND date = $2
			  AND status = ANY($3)
			  AND start_min < $4
			  AND end_min > $5
			  AND id <> $6
		)
	`, appt.DentistID, appt.Date, nonTerminalStrings(), int(appt.End), int(appt.Start), exclude).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return taken, nil
}

// asSlotConflict maps an exclusion-constraint violation to the domain
// conflict error.
func asSlotConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return ErrSlotConflict
	}
	return err
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, internalNotes *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments a
		SET status         = $2,
		    internal_notes = COALESCE($4, internal_notes),
		    updated_at     = now()
		WHERE a.id = $1
		  AND a.status = $3
		RETURNING `+appointmentColumns+`
	`, id, string(to), string(from), internalNotes)
	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
