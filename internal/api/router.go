package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/icarpio/marianoapi/internal/booking"
)

// Scheduler is what the handlers need from the booking engine.
type Scheduler interface {
	DaySlots(ctx context.Context, date time.Time, serviceID uuid.UUID, dentistID *uuid.UUID) ([]booking.SlotView, error)
	MonthAvailability(ctx context.Context, year int, month time.Month, serviceID uuid.UUID, dentistID *uuid.UUID) ([]booking.DayAvailability, error)

	CreateAppointment(ctx context.Context, req booking.CreateRequest) (*booking.AppointmentDetail, error)
	Reschedule(ctx context.Context, token string, req booking.RescheduleRequest) (*booking.AppointmentDetail, error)
	Cancel(ctx context.Context, token string) (*booking.AppointmentDetail, error)
	UpdateStatus(ctx context.Context, token string, to booking.Status, internalNotes *string) (*booking.AppointmentDetail, error)
	GetByToken(ctx context.Context, token string) (*booking.AppointmentDetail, error)
	PatientHistory(ctx context.Context, email string) ([]booking.AppointmentDetail, error)
	DentistAgenda(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]booking.AppointmentDetail, error)

	Services(ctx context.Context) ([]booking.Service, error)
	ServiceByID(ctx context.Context, id uuid.UUID) (*booking.Service, error)
	Dentists(ctx context.Context, serviceID *uuid.UUID) ([]booking.Dentist, error)
	DentistByID(ctx context.Context, id uuid.UUID) (*booking.Dentist, error)
}

type RouterConfig struct {
	Scheduler   Scheduler
	SlotMinutes int
	Now         func() time.Time
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health and observability
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	svc := cfg.Scheduler
	slotMinutes := cfg.SlotMinutes

	r.Route("/api", func(r chi.Router) {
		// Catalog
		r.Get("/services", listServicesHandler(svc, slotMinutes))
		r.Get("/services/{id}", getServiceHandler(svc, slotMinutes))
		r.Get("/dentists", listDentistsHandler(svc))
		r.Get("/dentists/{id}", getDentistHandler(svc))

		// Availability
		r.Get("/availability/slots", daySlotsHandler(svc, slotMinutes))
		r.Get("/availability/calendar", calendarHandler(svc, slotMinutes, cfg.Now))

		// Appointments
		r.Post("/appointments", createAppointmentHandler(svc, slotMinutes))
		r.Get("/appointments/patient", patientAppointmentsHandler(svc, slotMinutes))
		r.Get("/appointments/{token}", getAppointmentHandler(svc, slotMinutes))
		r.Post("/appointments/{token}/cancel", cancelAppointmentHandler(svc, slotMinutes))
		r.Post("/appointments/{token}/reschedule", rescheduleAppointmentHandler(svc, slotMinutes))
		r.Patch("/appointments/{token}", updateAppointmentHandler(svc, slotMinutes))

		// Internal tooling for the front desk
		r.Get("/internal/agenda", dentistAgendaHandler(svc, slotMinutes))
		r.Post("/internal/book", createAppointmentHandler(svc, slotMinutes))
	})

	return r
}
