package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for slot and booking flows.
type BookingMetrics struct {
	bookingTotal     *prometheus.CounterVec
	slotGeneration   *prometheus.HistogramVec
	slotsGenerated   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	otpTotal         *prometheus.CounterVec
	assistantTools   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by source and outcome",
		}, []string{"source", "outcome"}),
		slotGeneration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "slots",
			Name:      "generation_seconds",
			Help:      "Latency of slot generation including store reads",
			Buckets:   prometheus.DefBuckets,
		}, []string{"caller"}),
		slotsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "slots",
			Name:      "generated_total",
			Help:      "Slots emitted by availability",
		}, []string{"available"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to", "outcome"}),
		otpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "otp",
			Name:      "events_total",
			Help:      "OTP sends and verifications",
		}, []string{"event", "outcome"}),
		assistantTools: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "assistant",
			Name:      "tool_calls_total",
			Help:      "Assistant tool invocations",
		}, []string{"tool", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingTotal, m.slotGeneration, m.slotsGenerated, m.transitionsTotal, m.otpTotal, m.assistantTools)
	return m
}

func (m *BookingMetrics) ObserveBooking(source, outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(source, outcome).Inc()
}

func (m *BookingMetrics) ObserveSlotGeneration(caller string, d time.Duration, available, unavailable int) {
	if m == nil {
		return
	}
	m.slotGeneration.WithLabelValues(caller).Observe(d.Seconds())
	m.slotsGenerated.WithLabelValues("true").Add(float64(available))
	m.slotsGenerated.WithLabelValues("false").Add(float64(unavailable))
}

func (m *BookingMetrics) ObserveTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, outcome).Inc()
}

func (m *BookingMetrics) ObserveOTP(event, outcome string) {
	if m == nil {
		return
	}
	m.otpTotal.WithLabelValues(event, outcome).Inc()
}

func (m *BookingMetrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.assistantTools.WithLabelValues(tool, outcome).Inc()
}
