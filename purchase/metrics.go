package purchase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sacavia/guide-ledger/ledger"
)

var (
	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_purchases_total",
		Help: "Guide purchase attempts by pricing type and outcome",
	}, []string{"pricing", "outcome"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guide_purchase_side_effect_failures_total",
		Help: "Post-purchase side effects that exhausted retries and were dead-lettered",
	}, []string{"effect"})
)

func recordOutcome(pricing ledger.PricingType, outcome string) {
	purchasesTotal.WithLabelValues(string(pricing), outcome).Inc()
}
