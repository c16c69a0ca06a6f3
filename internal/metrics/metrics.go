// Package metrics holds the console's Prometheus instruments. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "modbus_console"

// Metrics holds Prometheus metrics for channels, the update pipeline and control commands.
type Metrics struct {
	// Channel metrics
	channelState   *prometheus.GaugeVec   // By channel; value is the numeric state
	reconnects     *prometheus.CounterVec // By channel
	errors         *prometheus.CounterVec // By channel and class (transport, malformed)
	circuitTrips   *prometheus.CounterVec // By channel
	messagesSent   *prometheus.CounterVec // By channel and type
	messagesRecv   *prometheus.CounterVec // By channel and type
	queueDepth     *prometheus.GaugeVec   // By channel
	handlerErrors  *prometheus.CounterVec // By channel and type
	framesRequeued *prometheus.CounterVec // By channel

	// Update pipeline metrics
	commits        *prometheus.CounterVec // By device
	stagedChanges  *prometheus.CounterVec // By device
	devicesKnown   prometheus.Gauge
	controlsIssued *prometheus.CounterVec // By register type and result (sent, throttled, rejected)

	// Audit log metrics
	auditEvents *prometheus.CounterVec // By result (stored, dropped, failed)
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		channelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "state",
			Help:      "Current channel state (0 disconnected, 1 connecting, 2 open, 3 closing, 4 reconnecting, 5 circuit open)",
		}, []string{"channel"}),

		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnect attempts",
		}, []string{"channel"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "errors_total",
			Help:      "Total number of channel errors counted toward the circuit breaker",
		}, []string{"channel", "class"}), // class: transport, malformed

		circuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "circuit_trips_total",
			Help:      "Total number of times the error circuit breaker opened",
		}, []string{"channel"}),

		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_sent_total",
			Help:      "Total number of outbound messages written to the transport",
		}, []string{"channel", "type"}),

		messagesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Total number of inbound messages routed",
		}, []string{"channel", "type"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "queue_depth",
			Help:      "Outbound messages waiting to be sent",
		}, []string{"channel"}),

		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "handler_errors_total",
			Help:      "Total number of message handler failures caught at the router",
		}, []string{"channel", "type"}),

		framesRequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "requeued_total",
			Help:      "Total number of outbound messages pushed back to the queue front",
		}, []string{"channel"}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "commits_total",
			Help:      "Total number of view commits",
		}, []string{"device"}),

		stagedChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "changes_total",
			Help:      "Total number of register changes committed to the view",
		}, []string{"device"}),

		devicesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "devices",
			Help:      "Number of devices known to the registry",
		}),

		controlsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "commands_total",
			Help:      "Total number of control actions by outcome",
		}, []string{"register_type", "result"}),

		auditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events by outcome",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.channelState, m.reconnects, m.errors, m.circuitTrips, m.messagesSent, m.messagesRecv,
		m.queueDepth, m.handlerErrors, m.framesRequeued, m.commits, m.stagedChanges, m.devicesKnown,
		m.controlsIssued, m.auditEvents,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SetChannelState(channel string, state int) {
	if m == nil {
		return
	}
	m.channelState.WithLabelValues(channel).Set(float64(state))
}

func (m *Metrics) IncReconnect(channel string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncError(channel, class string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(channel, class).Inc()
}

func (m *Metrics) IncCircuitTrip(channel string) {
	if m == nil {
		return
	}
	m.circuitTrips.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncSent(channel, msgType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(channel, msgType).Inc()
}

func (m *Metrics) IncReceived(channel, msgType string) {
	if m == nil {
		return
	}
	m.messagesRecv.WithLabelValues(channel, msgType).Inc()
}

func (m *Metrics) SetQueueDepth(channel string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(channel).Set(float64(n))
}

func (m *Metrics) IncHandlerError(channel, msgType string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(channel, msgType).Inc()
}

func (m *Metrics) IncRequeued(channel string) {
	if m == nil {
		return
	}
	m.framesRequeued.WithLabelValues(channel).Inc()
}

// ObserveCommit records one view commit carrying n changes.
func (m *Metrics) ObserveCommit(device string, n int) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(device).Inc()
	m.stagedChanges.WithLabelValues(device).Add(float64(n))
}

func (m *Metrics) SetDevices(n int) {
	if m == nil {
		return
	}
	m.devicesKnown.Set(float64(n))
}

func (m *Metrics) IncControl(registerType, result string) {
	if m == nil {
		return
	}
	m.controlsIssued.WithLabelValues(registerType, result).Inc()
}

func (m *Metrics) IncAudit(result string) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(result).Inc()
}
