package sender

import (
	"context"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSender 为投递添加指标采集的装饰器
type MetricsSender struct {
	sender   Sender
	outcomes *prometheus.CounterVec
	attempts prometheus.Histogram
}

// NewMetricsSender 创建一个新的带有指标采集的投递工作者
func NewMetricsSender(sender Sender, registerer prometheus.Registerer) *MetricsSender {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "broadcast_platform",
		Subsystem: "sender",
		Name:      "delivery_outcomes_total",
		Help:      "按终态统计的投递结果数",
	}, []string{"status"})
	attempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "broadcast_platform",
		Subsystem: "sender",
		Name:      "delivery_attempts",
		Help:      "单次投递序列内的尝试次数分布",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})
	registerer.MustRegister(outcomes, attempts)
	return &MetricsSender{
		sender:   sender,
		outcomes: outcomes,
		attempts: attempts,
	}
}

func (m *MetricsSender) Deliver(ctx context.Context, msg domain.DispatchMessage) (domain.DeliveryResult, error) {
	result, err := m.sender.Deliver(ctx, msg)
	if err == nil {
		m.outcomes.WithLabelValues(string(result.Status)).Inc()
		m.attempts.Observe(float64(len(result.StatusHistory)))
	}
	return result, err
}
