package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/icarpio/marianoapi/internal/booking"
	"github.com/icarpio/marianoapi/internal/schedule"
)

// POST /api/appointments and POST /api/internal/book share this
// handler: the booking path is identical, only the caller differs.
func createAppointmentHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		dentistID, err := uuid.Parse(req.DentistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := schedule.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		detail, err := svc.CreateAppointment(r.Context(), booking.CreateRequest{
			PatientName:  req.PatientName,
			PatientEmail: req.PatientEmail,
			PatientPhone: req.PatientPhone,
			DentistID:    dentistID,
			ServiceID:    serviceID,
			Date:         date,
			Start:        start,
			Notes:        req.Notes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(detail, slotMinutes))
	}
}

// GET /api/appointments/{token}
func getAppointmentHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.GetByToken(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(detail, slotMinutes))
	}
}

// POST /api/appointments/{token}/cancel
func cancelAppointmentHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.Cancel(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(detail, slotMinutes))
	}
}

// POST /api/appointments/{token}/reschedule
func rescheduleAppointmentHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := schedule.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		target := booking.RescheduleRequest{Date: date, Start: start}
		if req.DentistID != nil {
			id, err := uuid.Parse(*req.DentistID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
				return
			}
			target.DentistID = &id
		}
		if req.ServiceID != nil {
			id, err := uuid.Parse(*req.ServiceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			target.ServiceID = &id
		}

		detail, err := svc.Reschedule(r.Context(), chi.URLParam(r, "token"), target)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(detail, slotMinutes))
	}
}

// PATCH /api/appointments/{token}
func updateAppointmentHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var status booking.Status
		if req.Status != nil {
			status = booking.Status(*req.Status)
		}

		detail, err := svc.UpdateStatus(r.Context(), chi.URLParam(r, "token"), status, req.InternalNotes)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(detail, slotMinutes))
	}
}

// GET /api/appointments/patient?email=x
func patientAppointmentsHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			writeError(w, http.StatusBadRequest, "missing_email", "email query parameter is required")
			return
		}
		history, err := svc.PatientHistory(r.Context(), email)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]AppointmentResponse, 0, len(history))
		for i := range history {
			out = append(out, toAppointmentResponse(&history[i], slotMinutes))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /api/internal/agenda?dentist_id=X&date=YYYY-MM-DD
func dentistAgendaHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		dentistID, err := uuid.Parse(q.Get("dentist_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
			return
		}
		date, err := time.Parse("2006-01-02", q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		agenda, err := svc.DentistAgenda(r.Context(), dentistID, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]AppointmentResponse, 0, len(agenda))
		for i := range agenda {
			out = append(out, toAppointmentResponse(&agenda[i], slotMinutes))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
