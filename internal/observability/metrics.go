package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collaborator names used as metric labels.
const (
	CollaboratorAI     = "ai"
	CollaboratorOCR    = "ocr"
	CollaboratorMailer = "mailer"
	CollaboratorBlob   = "blob"
)

var (
	// collaboratorFailures counts absorbed failures of external collaborators.
	collaboratorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_failures_total",
			Help: "Failures of external collaborators (AI, OCR, mail, blob storage).",
		},
		[]string{"collaborator"},
	)

	// collaboratorLatency records the duration of collaborator calls.
	collaboratorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collaborator_call_duration_seconds",
			Help:    "Duration of calls to external collaborators in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"collaborator"},
	)

	// conversations counts completed chat turns by whether a session was created.
	conversations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Completed chat turns, labeled by new_session (true/false).",
		},
		[]string{"new_session"},
	)
)

func init() {
	prometheus.MustRegister(collaboratorFailures, collaboratorLatency, conversations)
}

// CollaboratorFailed increments the failure counter for name.
func CollaboratorFailed(name string) {
	collaboratorFailures.WithLabelValues(name).Inc()
}

// ObserveCollaborator records how long a call to name took since start.
func ObserveCollaborator(name string, start time.Time) {
	collaboratorLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// ConversationTurn counts a completed chat turn.
func ConversationTurn(newSession bool) {
	label := "false"
	if newSession {
		label = "true"
	}
	conversations.WithLabelValues(label).Inc()
}
