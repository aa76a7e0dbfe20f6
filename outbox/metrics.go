package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "guide_outbox_entries_total",
	Help: "Outbox entries handled by topic and result",
}, []string{"topic", "result"})
