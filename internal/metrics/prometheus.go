package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Collectors are created eagerly so service code can increment them whether
// or not a registry was wired (tests run without one); InitCustomMetrics
// only registers them for scraping.
var (
	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idp_tokens_issued_total",
		Help: "Total number of tokens issued, by kind.",
	}, []string{"kind"})
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_login_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_login_failure_total",
		Help: "Total number of failed login attempts.",
	})
	ConsentGrantedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_consent_granted_total",
		Help: "Total number of consent grants recorded.",
	})
	ConsentDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_consent_denied_total",
		Help: "Total number of consent denials.",
	})
	ActiveSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "idp_active_sessions",
		Help: "Number of active SSO sessions.",
	})
	LogoutNotifyFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_logout_notify_failed_total",
		Help: "Total number of failed logout notifications to clients.",
	})
)

// InitCustomMetrics registers the custom metrics with the given registerer.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	collectors := []prometheus.Collector{
		TokensIssuedTotal,
		LoginSuccessTotal,
		LoginFailureTotal,
		ConsentGrantedTotal,
		ConsentDeniedTotal,
		ActiveSessionsGauge,
		LogoutNotifyFailedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				log.Error().Err(err).Msg("failed to register metric")
			}
		}
	}
}
