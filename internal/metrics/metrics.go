// Package metrics exposes the orchestration counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeploymentsTotal counts finished deployment attempts by target and
	// terminal status.
	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpship",
		Name:      "deployments_total",
		Help:      "Finished deployment attempts by target type and status.",
	}, []string{"target_type", "status"})

	// DeploymentErrorsTotal counts classified failures by error code.
	DeploymentErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpship",
		Name:      "deployment_errors_total",
		Help:      "Classified deployment failures by error code.",
	}, []string{"error_code"})

	// HostingTransitionsTotal counts hosted-server status transitions.
	HostingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpship",
		Name:      "hosting_transitions_total",
		Help:      "Hosted server status transitions.",
	}, []string{"status"})

	// RollbacksTotal counts rollback executions by outcome.
	RollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpship",
		Name:      "rollbacks_total",
		Help:      "Rollback executions by outcome.",
	}, []string{"outcome"})

	// QuotaDenialsTotal counts deployments rejected by the monthly quota.
	QuotaDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mcpship",
		Name:      "quota_denials_total",
		Help:      "Deployments rejected by the monthly quota gate.",
	})
)
