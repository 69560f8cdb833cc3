package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/icarpio/marianoapi/internal/metrics"
)

// GET /api/availability/slots?date=YYYY-MM-DD&service_id=X[&dentist_id=Y]
func daySlotsHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := time.Parse("2006-01-02", q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		serviceID, err := uuid.Parse(q.Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		var dentistID *uuid.UUID
		if raw := q.Get("dentist_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
				return
			}
			dentistID = &id
		}

		metrics.AvailabilityRequests.WithLabelValues("day").Inc()

		slots, err := svc.DaySlots(r.Context(), date, serviceID, dentistID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		service, err := svc.ServiceByID(r.Context(), serviceID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DaySlotsResponse{
			Date:    date.Format("2006-01-02"),
			Service: toServiceResponse(*service, slotMinutes),
			Slots:   toSlotResponses(slots),
		})
	}
}

// GET /api/availability/calendar?year=2026&month=3&service_id=X[&dentist_id=Y]
func calendarHandler(svc Scheduler, slotMinutes int, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		year, month := now().Year(), int(now().Month())
		if raw := q.Get("year"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_year", "year must be an integer")
				return
			}
			year = n
		}
		if raw := q.Get("month"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 12 {
				writeError(w, http.StatusBadRequest, "invalid_month", "month must be 1-12")
				return
			}
			month = n
		}

		serviceID, err := uuid.Parse(q.Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		var dentistID *uuid.UUID
		if raw := q.Get("dentist_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
				return
			}
			dentistID = &id
		}

		metrics.AvailabilityRequests.WithLabelValues("month").Inc()

		days, err := svc.MonthAvailability(r.Context(), year, time.Month(month), serviceID, dentistID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		service, err := svc.ServiceByID(r.Context(), serviceID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]CalendarDayResponse, 0, len(days))
		for _, d := range days {
			out = append(out, CalendarDayResponse{
				Date:                d.Date.Format("2006-01-02"),
				HasAvailability:     d.HasAvailability,
				AvailableSlotsCount: d.AvailableSlotCount,
			})
		}
		writeJSON(w, http.StatusOK, CalendarResponse{
			Year:    year,
			Month:   month,
			Service: toServiceResponse(*service, slotMinutes),
			Days:    out,
		})
	}
}
