package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portal_client"

// Gateway holds the collectors updated by the authenticated request gateway.
type Gateway struct {
	Requests       *prometheus.CounterVec
	Renewals       *prometheus.CounterVec
	SessionExpired *prometheus.CounterVec
}

// NewGateway creates the gateway collectors and registers them with reg.
// A nil reg leaves the collectors unregistered, which is what tests and
// short-lived CLI invocations want.
func NewGateway(reg prometheus.Registerer) *Gateway {
	m := &Gateway{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "requests_total", Help: "Gateway requests by final outcome."},
			[]string{"outcome"},
		),
		Renewals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "renewals_total", Help: "Session renewal attempts by result."},
			[]string{"result"},
		),
		SessionExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "session_expired_total", Help: "Forced re-authentications by reason."},
			[]string{"reason"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Renewals, m.SessionExpired)
	}
	return m
}
