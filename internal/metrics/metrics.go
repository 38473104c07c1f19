package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcomes
const (
	OutcomeSuccess        = "success"
	OutcomeUnknownAccount = "unknown_account"
	OutcomeWrongPassword  = "wrong_password"
	OutcomeBanned         = "banned"
	OutcomeDecodeError    = "decode_error"
	OutcomeError          = "error"
)

// Metrics holds Prometheus collectors for the login gateway.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChainsStarted      *prometheus.CounterVec
	ChainsFailed       *prometheus.CounterVec
	ChainsInFlight     prometheus.Gauge
	StageDurationMs    *prometheus.HistogramVec
	LoginAttempts      *prometheus.CounterVec
	AutoBans           *prometheus.CounterVec
	ExpiredBansRemoved prometheus.Counter
	TicketsIssued      prometheus.Counter
	TicketsRefreshed   *prometheus.CounterVec
}

// New registers and returns the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChainsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bnetlogin_chains_started_total",
			Help: "Total number of query chains submitted",
		}, []string{"chain"}),
		ChainsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bnetlogin_chains_failed_total",
			Help: "Total number of query chains aborted by an error",
		}, []string{"chain"}),
		ChainsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bnetlogin_chains_in_flight",
			Help: "Current number of running query chains",
		}),
		StageDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bnetlogin_chain_stage_duration_ms",
			Help:    "Duration of individual chain stages in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"chain", "stage"}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bnetlogin_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		}, []string{"outcome"}),
		AutoBans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bnetlogin_auto_bans_total",
			Help: "Total number of bans issued by the bruteforce guard",
		}, []string{"mode"}),
		ExpiredBansRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "bnetlogin_expired_bans_removed_total",
			Help: "Total number of expired bans removed by the sweeper",
		}),
		TicketsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "bnetlogin_tickets_issued_total",
			Help: "Total number of new login tickets issued",
		}),
		TicketsRefreshed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bnetlogin_ticket_refreshes_total",
			Help: "Total number of ticket refresh requests by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ChainStarted(chain string) {
	if m == nil {
		return
	}
	m.ChainsStarted.WithLabelValues(chain).Inc()
	m.ChainsInFlight.Inc()
}

func (m *Metrics) ChainFinished(chain string, err error) {
	if m == nil {
		return
	}
	m.ChainsInFlight.Dec()
	if err != nil {
		m.ChainsFailed.WithLabelValues(chain).Inc()
	}
}

func (m *Metrics) ObserveStage(chain, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationMs.WithLabelValues(chain, stage).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AutoBan(mode string) {
	if m == nil {
		return
	}
	m.AutoBans.WithLabelValues(mode).Inc()
}

func (m *Metrics) BansExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredBansRemoved.Add(float64(n))
}

func (m *Metrics) TicketIssued() {
	if m == nil {
		return
	}
	m.TicketsIssued.Inc()
}

func (m *Metrics) TicketRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "expired"
	if ok {
		result = "refreshed"
	}
	m.TicketsRefreshed.WithLabelValues(result).Inc()
}
