package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CodesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_codes_issued_total",
			Help: "Total number of issue calls by outcome (created or reused).",
		},
		[]string{"purpose", "outcome"},
	)

	CodeValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_code_validations_total",
			Help: "Total number of code validations by result.",
		},
		[]string{"purpose", "result"},
	)

	CodesPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verification_codes_purged_total",
			Help: "Total number of expired verification codes deleted.",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification deliveries by result.",
		},
		[]string{"result"},
	)

	MessagesPostedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_posted_total",
			Help: "Total number of posted messages.",
		},
		[]string{"chat_type"},
	)

	ReceiptsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_receipts_created_total",
			Help: "Total number of read receipts created.",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors on the default registry with a
// constant service label. Subsequent calls are no-ops.
func MustRegister(serviceName string) {
	registerOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
		reg.MustRegister(
			CodesIssuedTotal,
			CodeValidationsTotal,
			CodesPurgedTotal,
			NotificationsTotal,
			MessagesPostedTotal,
			ReceiptsCreatedTotal,
		)
	})
}
