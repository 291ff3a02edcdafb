package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa los contadores del pipeline de autenticación y emisión.
// Un *Metrics nil es válido y no registra nada.
type Metrics struct {
	AuthAttempts        *prometheus.CounterVec
	NameRegistrations   *prometheus.CounterVec
	CredentialIssuances *prometheus.CounterVec
	MetadataFallbacks   prometheus.Counter
	MintDuration        prometheus.Histogram
	UnrecordedMints     prometheus.Counter
}

// New registra las métricas en reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ethed_auth_attempts_total",
			Help: "SIWE authentication attempts by result",
		}, []string{"result"}),
		NameRegistrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ethed_name_registrations_total",
			Help: "Subdomain registrations by result",
		}, []string{"result"}),
		CredentialIssuances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ethed_credential_issuances_total",
			Help: "Credential issuance requests by result",
		}, []string{"result"}),
		MetadataFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "ethed_metadata_fallback_total",
			Help: "Metadata documents written to local fallback storage",
		}),
		MintDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ethed_mint_duration_seconds",
			Help:    "Duration of mint submissions",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		UnrecordedMints: f.NewCounter(prometheus.CounterOpts{
			Name: "ethed_unrecorded_mints_total",
			Help: "Mints submitted on-chain whose credential record could not be persisted",
		}),
	}
}

func (m *Metrics) AuthResult(result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RegistrationResult(result string) {
	if m == nil {
		return
	}
	m.NameRegistrations.WithLabelValues(result).Inc()
}

func (m *Metrics) IssuanceResult(result string) {
	if m == nil {
		return
	}
	m.CredentialIssuances.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.MetadataFallbacks.Inc()
}

func (m *Metrics) IncrementUnrecordedMint() {
	if m == nil {
		return
	}
	m.UnrecordedMints.Inc()
}

// ObserveMint registra la duración de un mint. Llamar con time.Now() al inicio.
func (m *Metrics) ObserveMint(start time.Time) {
	if m == nil {
		return
	}
	m.MintDuration.Observe(time.Since(start).Seconds())
}
