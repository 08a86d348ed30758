// Package metrics defines and registers all custom Prometheus metrics for the
// identity and access provisioning service. It is the single source of truth
// for metric names, labels, and help strings.
//
// Metrics register themselves with the default registry at init; the /metrics
// endpoint is wired in the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ehr_identity"

// RegistrationTransitionsTotal counts workflow transitions by operation and outcome.
// Labels:
//   - operation: "request", "verify", "approve", "reject", "complete"
//   - outcome: "ok" or a stable error code (e.g. "INVALID_STATE")
var RegistrationTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_transitions_total",
		Help:      "Total registration workflow transitions, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// LoginsTotal counts login attempts by outcome.
// Label:
//   - outcome: "ok" or a stable error code (e.g. "INVALID_CREDENTIALS")
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// AuthFailuresTotal counts authentication gate rejections.
// Label:
//   - reason: "missing_token", "expired", "invalid", "invalid_user"
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total requests rejected by the authentication gate, by reason.",
	},
	[]string{"reason"},
)

// ForbiddenTotal counts authorization gate rejections by the caller's role.
var ForbiddenTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forbidden_total",
		Help:      "Total requests rejected by the authorization gate, by caller role.",
	},
	[]string{"role"},
)

// NotificationsTotal counts notification deliveries by kind and final outcome.
// Labels:
//   - kind: "verification", "approval", "rejection"
//   - outcome: "sent" or "failed"
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total notification deliveries, by kind and final outcome.",
	},
	[]string{"kind", "outcome"},
)

// NotificationRetriesTotal counts delivery retries by kind.
var NotificationRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_retries_total",
		Help:      "Total notification delivery retries, by kind.",
	},
	[]string{"kind"},
)
