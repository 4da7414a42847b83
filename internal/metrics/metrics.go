package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PushOpsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinisync_push_ops_ingested_total",
		Help: "Total number of ops appended to the sync ledger.",
	})

	PushOpsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinisync_push_ops_duplicate_total",
		Help: "Total number of pushed ops deduplicated against the ledger.",
	})

	PushCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinisync_push_collisions_total",
		Help: "Total number of push batches rejected because an opId was reused with a different payload.",
	})

	PushBatchesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinisync_push_batches_rejected_total",
		Help: "Total number of rejected push batches, labelled by error code.",
	}, []string{"code"})

	PullRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinisync_pull_requests_total",
		Help: "Total number of pull requests served.",
	})

	PullOpsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinisync_pull_ops_delivered_total",
		Help: "Total number of ledger ops delivered to pull clients.",
	})
)
