package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		activationsTotal,
		referralBonusesTotal,
	)
}

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Subscription extensions by provider; idempotent replays excluded.",
		},
		[]string{"provider"},
	)

	referralBonusesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_bonuses_total",
			Help: "Referral bonuses credited to referrers.",
		},
	)
)

func IncActivation(provider string) {
	activationsTotal.WithLabelValues(norm(provider)).Inc()
}

func IncReferralBonus() {
	referralBonusesTotal.Inc()
}
