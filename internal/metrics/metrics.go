// Package metrics holds the Prometheus collectors for the fund service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	accrualCycles    *prometheus.CounterVec
	accrualPositions *prometheus.CounterVec
	accrualDuration  prometheus.Histogram

	withdrawalSubmits   *prometheus.CounterVec
	withdrawalProcessed *prometheus.CounterVec

	consolidationInvestors *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		accrualCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_accrual_cycles_total",
			Help: "Accrual cycles by trigger and result",
		}, []string{"trigger", "result"}),
		accrualPositions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_accrual_positions_total",
			Help: "Positions visited by accrual cycles by outcome",
		}, []string{"outcome"}),
		accrualDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fund_accrual_cycle_duration_seconds",
			Help:    "Duration of accrual cycles",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		withdrawalSubmits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_withdrawal_submissions_total",
			Help: "Withdrawal submissions by result (accepted or rejection code)",
		}, []string{"result"}),
		withdrawalProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_withdrawals_processed_total",
			Help: "Withdrawal requests moved to a terminal status",
		}, []string{"status"}),
		consolidationInvestors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_consolidation_investors_total",
			Help: "Investors consolidated by result",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fund_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAccrualCycle records one finished cycle.
func (m *Metrics) ObserveAccrualCycle(trigger string, ok bool, updated, skipped, failed int, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.accrualCycles.WithLabelValues(trigger, result).Inc()
	m.accrualPositions.WithLabelValues("updated").Add(float64(updated))
	m.accrualPositions.WithLabelValues("skipped").Add(float64(skipped))
	m.accrualPositions.WithLabelValues("error").Add(float64(failed))
	m.accrualDuration.Observe(d.Seconds())
}

// IncWithdrawalSubmit counts a submission; result is "accepted" or a rejection code.
func (m *Metrics) IncWithdrawalSubmit(result string) {
	if m == nil {
		return
	}
	m.withdrawalSubmits.WithLabelValues(result).Inc()
}

// IncWithdrawalProcessed counts an approval or rejection.
func (m *Metrics) IncWithdrawalProcessed(status string) {
	if m == nil {
		return
	}
	m.withdrawalProcessed.WithLabelValues(status).Inc()
}

// IncConsolidation counts consolidated investors.
func (m *Metrics) IncConsolidation(success, failed int) {
	if m == nil {
		return
	}
	m.consolidationInvestors.WithLabelValues("success").Add(float64(success))
	m.consolidationInvestors.WithLabelValues("failure").Add(float64(failed))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
