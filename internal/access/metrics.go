package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyrabot_access_decisions_total",
		Help: "Usage-limit decisions by reason.",
	}, []string{"reason", "allowed"})

	unclassifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyrabot_access_unclassified_operations_total",
		Help: "Operations allowed only because they are in neither the limited nor the unlimited set.",
	}, []string{"operation"})

	downgradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyrabot_access_premium_downgrades_total",
		Help: "Expired premium users downgraded on read.",
	})
)
