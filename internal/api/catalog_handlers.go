package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func listServicesHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := svc.Services(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]ServiceResponse, 0, len(services))
		for _, s := range services {
			out = append(out, toServiceResponse(s, slotMinutes))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getServiceHandler(svc Scheduler, slotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "id must be a valid UUID")
			return
		}
		s, err := svc.ServiceByID(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toServiceResponse(*s, slotMinutes))
	}
}

func listDentistsHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var serviceID *uuid.UUID
		if raw := r.URL.Query().Get("service_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			serviceID = &id
		}
		withSchedules := r.URL.Query().Get("detail") != ""

		dentists, err := svc.Dentists(r.Context(), serviceID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]DentistResponse, 0, len(dentists))
		for _, d := range dentists {
			out = append(out, toDentistResponse(d, withSchedules))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getDentistHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "id must be a valid UUID")
			return
		}
		d, err := svc.DentistByID(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDentistResponse(*d, true))
	}
}
