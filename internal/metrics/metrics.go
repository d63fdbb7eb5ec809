// Package metrics exposes prometheus collectors for the relay. Collectors
// are registered on the default registry and served via /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveActors tracks session actors currently resident in memory.
	ActiveActors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "active_actors",
		Help:      "Number of session actors resident in memory.",
	})

	// OpenSockets tracks attached websocket connections by role.
	OpenSockets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "open_sockets",
		Help:      "Number of attached websocket connections.",
	}, []string{"role"})

	// PromptsDispatched counts prompts handed to a runner, by dispatch path.
	PromptsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "prompts_dispatched_total",
		Help:      "Prompts dispatched to a runner.",
	}, []string{"path"})

	// PromptsQueued counts prompts that entered the durable queue.
	PromptsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "prompts_queued_total",
		Help:      "Prompts admitted to the durable queue.",
	})

	// QuestionsExpired counts questions resolved by the expiry alarm.
	QuestionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "questions_expired_total",
		Help:      "Questions expired without a human answer.",
	})

	// BroadcastFrames counts frames fanned out to clients, by frame type.
	BroadcastFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "broadcast_frames_total",
		Help:      "Frames broadcast to client sockets.",
	}, []string{"type"})

	// DroppedFrames counts frames dropped on slow or dead sockets.
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped because a socket send buffer was full.",
	})
)

// Dispatch paths for PromptsDispatched.
const (
	DispatchDirect = "direct"
	DispatchQueued = "queued"
)
