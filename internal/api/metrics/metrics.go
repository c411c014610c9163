// Package metrics defines and registers all custom Prometheus metrics for the
// user access API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics register with the default Prometheus registry on package init via
// promauto and are served by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "useraccess"

// ── Access control ────────────────────────────────────────────────────────────

// AccessDecisionsTotal counts policy outcomes per request.
// Labels:
//   - action: "view_user", "view_by_role" or "delete_user"
//   - result: "allow" or "deny"
//   - reason: empty on allow, otherwise "insufficient_role" or "protected_target"
var AccessDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_decisions_total",
		Help:      "Total number of access policy decisions, by action and result.",
	},
	[]string{"action", "result", "reason"},
)

// AuthFailuresTotal counts rejected authentication attempts. The reason is
// never exposed to clients, only here.
// Label:
//   - reason: "missing", "invalid", "unknown_subject" or "provider_unavailable"
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of failed authentications, by internal reason.",
	},
	[]string{"reason"},
)

// ── Deletion ──────────────────────────────────────────────────────────────────

// UserDeletionsTotal counts users removed from the local store.
var UserDeletionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "user_deletions_total",
		Help:      "Total number of users deleted from the local store.",
	},
)

// ExternalDeletionFailuresTotal counts upstream account removals that failed
// on the request path, whether or not a retry could be scheduled.
var ExternalDeletionFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "external_deletion_failures_total",
		Help:      "Total number of upstream account deletions that failed during the request.",
	},
)

// ReconcileAttemptsTotal counts reconciler outcomes.
// Label:
//   - result: "retry", "success", "abandoned" or "dropped"
var ReconcileAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_attempts_total",
		Help:      "Total number of upstream deletion retries, by result.",
	},
	[]string{"result"},
)

// ReconcileQueueDepth tracks pending tasks in each reconciler worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var ReconcileQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconcile_queue_depth",
		Help:      "Current number of upstream deletions pending in each reconciler worker channel.",
	},
	[]string{"worker_id"},
)
