package ioc

import (
	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/repository"
	configsvc "gitee.com/flycash/broadcast-platform/internal/service/config"
	"gitee.com/flycash/broadcast-platform/internal/service/delivery"
	"gitee.com/flycash/broadcast-platform/internal/service/sender"
	"github.com/prometheus/client_golang/prometheus"
)

// newSenderChain 组装投递工作者：核心实现外面套指标采集和链路追踪
func newSenderChain(
	notificationRepo repository.NotificationRepository,
	recipientRepo repository.RecipientRepository,
	client delivery.Client,
	dispatchProducer mqx.Producer[domain.DispatchMessage],
	outcomeProducer mqx.Producer[domain.OutcomeEvent],
	settingsSvc configsvc.DeliverySettingsService,
) sender.Sender {
	base := sender.NewSender(notificationRepo, recipientRepo, client,
		dispatchProducer, outcomeProducer, settingsSvc)
	withMetrics := sender.NewMetricsSender(base, prometheus.DefaultRegisterer)
	return sender.NewObservabilitySender(withMetrics)
}
