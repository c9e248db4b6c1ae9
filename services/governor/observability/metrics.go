// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability defines the Prometheus collectors for the governor
// service and helpers for recording them with bounded label values.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "strait"
	metricsSubsystem = "governor"
)

// Label values for the outcome dimension of strait_governor_changes_total.
const (
	OutcomeTracked = "tracked"
	OutcomeBlocked = "blocked"
	OutcomeFailed  = "failed"
)

// Label values for the outcome dimension of
// strait_governor_notifications_total.
const (
	NotifyDelivered = "delivered"
	NotifyFailed    = "failed"
	NotifyDropped   = "dropped"
)

// Metrics holds every Prometheus collector the governor registers.
//
// # Thread Safety
//
// All collectors are safe for concurrent use. The struct itself is
// write-once: InitMetrics builds it at startup and code only reads the
// collector fields afterward.
type Metrics struct {
	// ChangesTracked counts tracked schema changes by kind and outcome.
	ChangesTracked *prometheus.CounterVec

	// BreakingDetected counts breaking-change findings by severity tier.
	BreakingDetected *prometheus.CounterVec

	// PolicyDecisions counts policy evaluations by policy name and action.
	PolicyDecisions *prometheus.CounterVec

	// ImpactAnalyses counts impact analyses by resulting level.
	ImpactAnalyses *prometheus.CounterVec

	// ReviewEvents counts review lifecycle events (created, approved,
	// rejected, cancelled).
	ReviewEvents *prometheus.CounterVec

	// PendingReviews tracks the number of reviews currently awaiting
	// approval. Sampled from the store rather than incremented, so it
	// survives restarts and idempotent retries without skew.
	PendingReviews prometheus.Gauge

	// TrackDuration observes wall-clock seconds per tracking pipeline
	// run, detection included.
	TrackDuration prometheus.Histogram

	// Notifications counts dispatched team notifications by outcome.
	Notifications *prometheus.CounterVec
}

// DefaultMetrics is the process-wide metrics instance. It is nil until
// InitMetrics runs; recording methods tolerate a nil receiver so library
// code and tests never need a registered instance.
var DefaultMetrics *Metrics

// InitMetrics registers all governor collectors with the default registry
// and installs the result as DefaultMetrics. Calling it twice panics
// (promauto rejects duplicate registration), so it belongs in service
// startup only.
func InitMetrics() *Metrics {
	m := &Metrics{
		ChangesTracked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "changes_total",
				Help:      "Schema changes submitted for tracking, by change kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		BreakingDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "breaking_changes_total",
				Help:      "Breaking-change findings reported by the detector, by severity tier.",
			},
			[]string{"tier"},
		),
		PolicyDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "policy_decisions_total",
				Help:      "Policy evaluations, by policy name and resulting action.",
			},
			[]string{"policy", "action"},
		),
		ImpactAnalyses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "impact_analyses_total",
				Help:      "Impact analyses performed, by resulting impact level.",
			},
			[]string{"level"},
		),
		ReviewEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "review_events_total",
				Help:      "Review lifecycle events, by event name.",
			},
			[]string{"event"},
		),
		PendingReviews: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "pending_reviews",
				Help:      "Reviews currently awaiting approval.",
			},
		),
		TrackDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "track_duration_seconds",
				Help:      "Wall-clock duration of change-tracking pipeline runs.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Notifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "notifications_total",
				Help:      "Team notifications handed to the dispatcher, by delivery outcome.",
			},
			[]string{"outcome"},
		),
	}
	DefaultMetrics = m
	return m
}

// RecordChange counts one tracked change.
func (m *Metrics) RecordChange(kind, outcome string) {
	if m == nil {
		return
	}
	m.ChangesTracked.WithLabelValues(kind, outcome).Inc()
}

// RecordBreaking counts breaking findings at the given severity tier.
func (m *Metrics) RecordBreaking(tier string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.BreakingDetected.WithLabelValues(tier).Add(float64(count))
}

// RecordPolicyDecision counts one policy evaluation.
func (m *Metrics) RecordPolicyDecision(policy, action string) {
	if m == nil {
		return
	}
	m.PolicyDecisions.WithLabelValues(policy, action).Inc()
}

// RecordImpact counts one impact analysis.
func (m *Metrics) RecordImpact(level string) {
	if m == nil {
		return
	}
	m.ImpactAnalyses.WithLabelValues(level).Inc()
}

// ReviewCreated counts a new review.
func (m *Metrics) ReviewCreated() {
	if m == nil {
		return
	}
	m.ReviewEvents.WithLabelValues("created").Inc()
}

// ReviewResolved counts a terminal review transition. The event is the
// terminal status name.
func (m *Metrics) ReviewResolved(event string) {
	if m == nil {
		return
	}
	m.ReviewEvents.WithLabelValues(event).Inc()
}

// SetPendingReviews records the sampled count of pending reviews.
func (m *Metrics) SetPendingReviews(n int) {
	if m == nil {
		return
	}
	m.PendingReviews.Set(float64(n))
}

// ObserveTrack records one tracking pipeline duration in seconds.
func (m *Metrics) ObserveTrack(seconds float64) {
	if m == nil {
		return
	}
	m.TrackDuration.Observe(seconds)
}

// RecordNotification counts one notification delivery outcome.
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}
