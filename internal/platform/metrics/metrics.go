package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RecordsCreated        prometheus.Counter
	RecordsFinalized      prometheus.Counter
	RecordsRejected       prometheus.Counter
	Attestations          *prometheus.CounterVec
	DuplicateAttestations prometheus.Counter

	CertificatesIssued prometheus.Counter
	PensionsStopped    prometheus.Counter
	EffectFailures     prometheus.Counter
	EffectEscalations  prometheus.Counter

	SessionsOpened       prometheus.Counter
	SessionOutcomes      *prometheus.CounterVec
	SchedulerEscalations prometheus.Counter

	HTTPDuration *prometheus.HistogramVec
}

// New creates all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics against an explicit registerer. Tests pass a
// fresh registry so parallel constructions do not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_death_records_created_total",
			Help: "Total number of death records created.",
		}),
		RecordsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_death_records_finalized_total",
			Help: "Total number of death records that reached quorum and finalized.",
		}),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_death_records_rejected_total",
			Help: "Total number of death records rejected by administrative override.",
		}),
		Attestations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrum_attestations_total",
			Help: "Total attestations accepted, by entity role.",
		}, []string{"role"}),
		DuplicateAttestations: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_attestations_duplicate_total",
			Help: "Attestations ignored because the role had already attested.",
		}),
		CertificatesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_certificates_issued_total",
			Help: "Death certificates issued by the effect dispatcher.",
		}),
		PensionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_pensions_stopped_total",
			Help: "Pension terminations executed by the effect dispatcher.",
		}),
		EffectFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_effect_failures_total",
			Help: "Transient downstream failures observed while dispatching effects.",
		}),
		EffectEscalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_effect_escalations_total",
			Help: "Records requiring manual intervention after retry exhaustion.",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_liveness_sessions_opened_total",
			Help: "Liveness verification sessions opened.",
		}),
		SessionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrum_liveness_session_outcomes_total",
			Help: "Terminal liveness session outcomes, by outcome.",
		}, []string{"outcome"}),
		SchedulerEscalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrum_scheduler_escalations_total",
			Help: "Subjects escalated to mandatory in-person verification.",
		}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrum_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
