// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for trap, trigger and message activity.
// A nil *Metrics is valid and records nothing.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/momentics/hioload-ipc/api"
)

const metricsNamespace = "hioload_ipc"

// Arm outcomes recorded by ArmOutcome.
const (
	ArmArmed        = "armed"
	ArmAlready      = "already_armed"
	ArmSatisfied    = "satisfied"
	ArmNoTriggers   = "no_triggers"
	ArmInvalidState = "invalid"
)

// Metrics holds every collector exported by the library.
type Metrics struct {
	triggersAdded   prometheus.Counter
	triggersRemoved prometheus.Counter
	triggersActive  prometheus.Gauge
	trapEvents      *prometheus.CounterVec
	armOutcomes     *prometheus.CounterVec
	messages        *prometheus.CounterVec
	messageBytes    *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg. A nil reg uses a private
// registry so several instances can coexist in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		triggersAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "triggers_added_total",
			Help:      "Triggers registered on traps",
		}),
		triggersRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "triggers_removed_total",
			Help:      "Triggers removed explicitly, by handle closure or by trap close",
		}),
		triggersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "triggers_active",
			Help:      "Triggers currently registered",
		}),
		trapEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trap_events_total",
			Help:      "Events delivered to trap handlers by result",
		}, []string{"result"}),
		armOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trap_arm_total",
			Help:      "Arm calls by outcome",
		}, []string{"outcome"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Messages transferred by direction",
		}, []string{"direction"}),
		messageBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "message_bytes_total",
			Help:      "Message payload bytes transferred by direction",
		}, []string{"direction"}),
	}
}

// TriggerAdded records a new trigger.
func (m *Metrics) TriggerAdded() {
	if m == nil {
		return
	}
	m.triggersAdded.Inc()
	m.triggersActive.Inc()
}

// TriggerRemoved records a trigger leaving its trap.
func (m *Metrics) TriggerRemoved() {
	if m == nil {
		return
	}
	m.triggersRemoved.Inc()
	m.triggersActive.Dec()
}

// TrapEvent records one handler invocation.
func (m *Metrics) TrapEvent(result api.ResultCode) {
	if m == nil {
		return
	}
	m.trapEvents.WithLabelValues(result.String()).Inc()
}

// ArmOutcome records the result of an Arm call.
func (m *Metrics) ArmOutcome(outcome string) {
	if m == nil {
		return
	}
	m.armOutcomes.WithLabelValues(outcome).Inc()
}

// MessageWritten records a message accepted by the primitive.
func (m *Metrics) MessageWritten(size int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("write").Inc()
	m.messageBytes.WithLabelValues("write").Add(float64(size))
}

// MessageRead records a message taken from the primitive.
func (m *Metrics) MessageRead(size int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("read").Inc()
	m.messageBytes.WithLabelValues("read").Add(float64(size))
}
