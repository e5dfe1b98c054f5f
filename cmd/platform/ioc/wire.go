//go:build wireinject

package ioc

import (
	"gitee.com/flycash/broadcast-platform/internal/domain"
	prodioc "gitee.com/flycash/broadcast-platform/internal/ioc"
	"gitee.com/flycash/broadcast-platform/internal/repository"
	"gitee.com/flycash/broadcast-platform/internal/repository/dao"
	"gitee.com/flycash/broadcast-platform/internal/service/aggregator"
	"gitee.com/flycash/broadcast-platform/internal/service/audience"
	"gitee.com/flycash/broadcast-platform/internal/service/batcher"
	configsvc "gitee.com/flycash/broadcast-platform/internal/service/config"
	"gitee.com/flycash/broadcast-platform/internal/service/orchestrator"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

func InitApp() *prodioc.App {
	wire.Build(
		prodioc.InitDB,
		prodioc.InitRedisClient,
		wire.Bind(new(redis.Cmdable), new(*redis.Client)),
		prodioc.InitLocalCache,
		prodioc.InitKafkaProducer,
		prodioc.InitDispatchProducer,
		prodioc.InitOutcomeProducer,
		prodioc.InitDeliveryClient,
		prodioc.InitDirectoryService,
		prodioc.InitDirectoryLimiter,
		prodioc.InitIdempotencyService,
		prodioc.InitIDGenerator,
		prodioc.InitDistributedLock,
		prodioc.InitTasks,
		prodioc.InitConsumers,
		prodioc.InitWebServer,

		dao.NewNotificationDAO,
		dao.NewRecipientDAO,
		dao.NewDeliverySettingsDAO,
		repository.NewNotificationRepository,
		repository.NewRecipientRepository,
		configsvc.NewDeliverySettingsService,
		domain.DefaultDeliverySettings,
		audience.NewResolver,
		batcher.NewBatcher,
		newSenderChain,
		aggregator.NewAggregator,
		orchestrator.NewOrchestrator,
		orchestrator.NewSweepTask,

		wire.Struct(new(prodioc.App), "*"),
	)
	return new(prodioc.App)
}
