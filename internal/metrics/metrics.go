// Package metrics exposes the Prometheus instruments for the booking
// engine. Counters are registered on the default registry and served
// by the router's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingsTotal counts booking attempts by outcome:
	// created, rescheduled, conflict, rejected, error.
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_bookings_total",
		Help: "Booking attempts by outcome.",
	}, []string{"outcome"})

	// AvailabilityRequests counts availability queries by view
	// (day or month).
	AvailabilityRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_availability_requests_total",
		Help: "Availability queries by view.",
	}, []string{"view"})

	// StatusTransitions counts lifecycle moves by target status.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_status_transitions_total",
		Help: "Appointment status transitions by target status.",
	}, []string{"to"})
)
