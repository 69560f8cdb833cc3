package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/icarpio/marianoapi/internal/booking"
)

type ServiceResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           *float64  `json:"price"`
	Color           string    `json:"color"`
	SlotsRequired   int       `json:"slots_required"`
}

type ScheduleResponse struct {
	DayOfWeek int     `json:"day_of_week"`
	DayName   string  `json:"day_name"`
	Start     string  `json:"start_time"`
	End       string  `json:"end_time"`
	Start2    *string `json:"start_time_2,omitempty"`
	End2      *string `json:"end_time_2,omitempty"`
}

type DentistResponse struct {
	ID         uuid.UUID          `json:"id"`
	FullName   string             `json:"full_name"`
	Specialty  string             `json:"specialty"`
	ServiceIDs []uuid.UUID        `json:"service_ids"`
	Schedules  []ScheduleResponse `json:"schedules,omitempty"`
}

type SlotResponse struct {
	Time        string     `json:"time"`
	Available   bool       `json:"available"`
	DentistID   *uuid.UUID `json:"dentist_id"`
	DentistName *string    `json:"dentist_name"`
}

type DaySlotsResponse struct {
	Date    string          `json:"date"`
	Service ServiceResponse `json:"service"`
	Slots   []SlotResponse  `json:"slots"`
}

type CalendarDayResponse struct {
	Date                string `json:"date"`
	HasAvailability     bool   `json:"has_availability"`
	AvailableSlotsCount int    `json:"available_slots_count"`
}

type CalendarResponse struct {
	Year    int                   `json:"year"`
	Month   int                   `json:"month"`
	Service ServiceResponse       `json:"service"`
	Days    []CalendarDayResponse `json:"days"`
}

type CreateAppointmentRequest struct {
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	DentistID    string `json:"dentist_id"`
	ServiceID    string `json:"service_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	Notes        string `json:"notes"`
}

type RescheduleAppointmentRequest struct {
	DentistID *string `json:"dentist_id"`
	ServiceID *string `json:"service_id"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
}

type UpdateAppointmentRequest struct {
	Status        *string `json:"status"`
	InternalNotes *string `json:"internal_notes"`
}

type PatientResponse struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// AppointmentResponse is keyed by the confirmation token; the internal
// row id is never exposed on patient-facing routes.
type AppointmentResponse struct {
	ConfirmationToken string           `json:"confirmation_token"`
	Status            string           `json:"status"`
	Date              string           `json:"date"`
	StartTime         string           `json:"start_time"`
	EndTime           string           `json:"end_time"`
	Notes             string           `json:"notes,omitempty"`
	InternalNotes     string           `json:"internal_notes,omitempty"`
	Patient           *PatientResponse `json:"patient,omitempty"`
	Dentist           *DentistResponse `json:"dentist,omitempty"`
	Service           *ServiceResponse `json:"service,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Mapping helpers

func toServiceResponse(s booking.Service, slotMinutes int) ServiceResponse {
	return ServiceResponse{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price,
		Color:           s.Color,
		SlotsRequired:   s.SlotsRequired(slotMinutes),
	}
}

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func toDentistResponse(d booking.Dentist, withSchedules bool) DentistResponse {
	resp := DentistResponse{
		ID:         d.ID,
		FullName:   d.FullName(),
		Specialty:  d.Specialty,
		ServiceIDs: d.ServiceIDs,
	}
	if !withSchedules {
		return resp
	}
	for _, ws := range d.Schedules {
		if !ws.Active {
			continue
		}
		sr := ScheduleResponse{
			DayOfWeek: ws.Weekday,
			Start:     ws.Start.String(),
			End:       ws.End.String(),
		}
		if ws.Weekday >= 0 && ws.Weekday < 7 {
			sr.DayName = dayNames[ws.Weekday]
		}
		if ws.Start2 != nil && ws.End2 != nil {
			s2, e2 := ws.Start2.String(), ws.End2.String()
			sr.Start2, sr.End2 = &s2, &e2
		}
		resp.Schedules = append(resp.Schedules, sr)
	}
	return resp
}

func toAppointmentResponse(d *booking.AppointmentDetail, slotMinutes int) AppointmentResponse {
	resp := AppointmentResponse{
		ConfirmationToken: d.ConfirmationToken,
		Status:            string(d.Status),
		Date:              d.Date.Format("2006-01-02"),
		StartTime:         d.Start.String(),
		EndTime:           d.End.String(),
		Notes:             d.Notes,
		InternalNotes:     d.InternalNotes,
		CreatedAt:         d.CreatedAt,
	}
	if d.Patient != nil {
		resp.Patient = &PatientResponse{
			FullName: d.Patient.FullName(),
			Email:    d.Patient.Email,
			Phone:    d.Patient.Phone,
		}
	}
	if d.Dentist != nil {
		dr := toDentistResponse(*d.Dentist, false)
		resp.Dentist = &dr
	}
	if d.Service != nil {
		sr := toServiceResponse(*d.Service, slotMinutes)
		resp.Service = &sr
	}
	return resp
}

func toSlotResponses(views []booking.SlotView) []SlotResponse {
	out := make([]SlotResponse, 0, len(views))
	for _, v := range views {
		out = append(out, SlotResponse{
			Time:        v.Time.String(),
			Available:   v.Available,
			DentistID:   v.DentistID,
			DentistName: v.DentistName,
		})
	}
	return out
}
