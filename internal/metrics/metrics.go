// Package metrics 暴露巡检相关的 Prometheus 指标（loop 模式下经 /metrics 输出）
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"statuspulse/internal/status"
)

const namespace = "statuspulse"

// 通知结果
const (
	NotifySent       = "sent"
	NotifyFailed     = "failed"
	NotifySkipped    = "skipped"    // 未配置 Webhook
	NotifySuppressed = "suppressed" // 无变化或首次运行不通知
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of check cycles by change result",
		},
		[]string{"result"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full check cycle in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	acquisitionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_failures_total",
			Help:      "Total number of failed acquisitions by reason",
		},
		[]string{"reason"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of notification decisions by outcome",
		},
		[]string{"outcome"},
	)

	isDown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "is_down",
			Help:      "Whether any service is currently BAD (0/1)",
		},
	)

	verified = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "verified",
			Help:      "Whether the latest snapshot came from a successful acquisition (0/1)",
		},
	)

	serviceSeverity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_severity",
			Help:      "Severity rank per service (0=OK, 1=UNVERIFIED, 2=DEGRADED, 3=BAD)",
		},
		[]string{"service"},
	)

	outageIntervals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outage_intervals",
			Help:      "Number of outage intervals within the retention window",
		},
	)
)

// RecordCycle 记录一轮检查的结果与耗时
func RecordCycle(result string, d time.Duration) {
	cyclesTotal.WithLabelValues(result).Inc()
	cycleDuration.Observe(d.Seconds())
}

// RecordAcquisitionFailure 记录采集失败
func RecordAcquisitionFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	acquisitionFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordNotification 记录通知结果
func RecordNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// SetSnapshot 按最新快照刷新状态类指标（先清空，去掉已消失的服务）
func SetSnapshot(snap status.Snapshot, intervals int) {
	isDown.Set(boolToFloat(snap.IsDown))
	verified.Set(boolToFloat(snap.Verified))
	outageIntervals.Set(float64(intervals))

	serviceSeverity.Reset()
	for _, svc := range snap.Services {
		serviceSeverity.WithLabelValues(svc.Name).Set(float64(svc.Severity.Rank()))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
