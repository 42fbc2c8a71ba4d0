// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 团购核心的业务指标。result 标签区分 success / 各类业务拒绝原因，
// 方便在看板上直接观察拼团失败的构成。
var (
	JoinTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuanbuy",
		Subsystem: "groupbuy",
		Name:      "join_total",
		Help:      "Total join attempts by result.",
	}, []string{"result"})

	CancelTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuanbuy",
		Subsystem: "groupbuy",
		Name:      "cancel_total",
		Help:      "Total participation cancels by result.",
	}, []string{"result"})

	DealFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuanbuy",
		Subsystem: "groupbuy",
		Name:      "deal_finalized_total",
		Help:      "Deals finalized by outcome (succeeded/failed).",
	}, []string{"outcome"})

	OrderTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuanbuy",
		Subsystem: "order",
		Name:      "order_total",
		Help:      "Order operations by op and result.",
	}, []string{"op", "result"})

	SweeperRunSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tuanbuy",
		Subsystem: "sweeper",
		Name:      "run_seconds",
		Help:      "Duration of one sweeper pass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sweep"})

	SweeperSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuanbuy",
		Subsystem: "sweeper",
		Name:      "swept_total",
		Help:      "Rows transitioned by the sweeper.",
	}, []string{"sweep"})

	NotificationEnqueueTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuanbuy",
		Subsystem: "notification",
		Name:      "enqueue_total",
		Help:      "Notification events enqueued by type and result.",
	}, []string{"event", "result"})
)
