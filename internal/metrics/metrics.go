// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports remote activity as Prometheus counters.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/dimmerswitch/pkg/dimmer"
)

// Event outcomes
const (
	OutcomeSent    = "sent"
	OutcomeDropped = "dropped"
)

// Recorder counts remote activity. It implements dimmer.Observer.
type Recorder struct {
	events      *prometheus.CounterVec
	sessions    prometheus.Counter
	ignored     *prometheus.CounterVec
	completions *prometheus.CounterVec
}

// New registers the remote metrics on reg
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dimmerswitch_events_total",
			Help: "Button events decided by the remote, by kind and outcome (sent/dropped).",
		}, []string{"kind", "outcome"}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Name: "dimmerswitch_sessions_total",
			Help: "Press-to-release sessions that returned to idle.",
		}),
		ignored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dimmerswitch_ignored_edges_total",
			Help: "Button edges that caused no state change, by reason.",
		}, []string{"reason"}),
		completions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dimmerswitch_transmit_completions_total",
			Help: "Transport completions, by result (ok/error).",
		}, []string{"result"}),
	}
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func kindLabel(k dimmer.TransitionKind) string {
	return strings.ToLower(k.String())
}

// EventSent implements dimmer.Observer
func (r *Recorder) EventSent(ev dimmer.Event, _ dimmer.WirePayload) {
	r.events.WithLabelValues(kindLabel(ev.Kind), OutcomeSent).Inc()
}

// EventDropped implements dimmer.Observer
func (r *Recorder) EventDropped(ev dimmer.Event) {
	r.events.WithLabelValues(kindLabel(ev.Kind), OutcomeDropped).Inc()
}

// EdgeIgnored implements dimmer.Observer
func (r *Recorder) EdgeIgnored(_ dimmer.Edge, reason dimmer.IgnoreReason) {
	r.ignored.WithLabelValues(string(reason)).Inc()
}

// TransmitCompleted implements dimmer.Observer
func (r *Recorder) TransmitCompleted(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.completions.WithLabelValues(result).Inc()
}

// SessionFinished implements dimmer.Observer
func (r *Recorder) SessionFinished(dimmer.Session) {
	r.sessions.Inc()
}
