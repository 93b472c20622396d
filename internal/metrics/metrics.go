package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	deploymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_deployments_total",
		Help: "Total number of per-platform deployment attempts",
	}, []string{"platform"})
	deployFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_deploy_failures_total",
		Help: "Total number of per-platform deployment failures",
	}, []string{"platform"})
	rebuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_rebuilds_total",
		Help: "Total number of full artifact rebuilds",
	})
	driftEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_artifact_drift_events_total",
		Help: "Total number of external edits observed on managed artifacts",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(deploymentsTotal, deployFailuresTotal, rebuildsTotal, driftEventsTotal)
}

// IncDeployment increments the deployment attempts counter for a platform.
func IncDeployment(platform string) { deploymentsTotal.WithLabelValues(platform).Inc() }

// IncDeployFailure increments the deployment failures counter for a platform.
func IncDeployFailure(platform string) { deployFailuresTotal.WithLabelValues(platform).Inc() }

// IncRebuild increments the rebuild counter.
func IncRebuild() { rebuildsTotal.Inc() }

// IncDriftEvent increments the drift events counter.
func IncDriftEvent() { driftEventsTotal.Inc() }
