package ioc

import (
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/event/dispatch"
	"gitee.com/flycash/broadcast-platform/internal/event/outcome"
	"gitee.com/flycash/broadcast-platform/internal/pkg/idempotent"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/service/aggregator"
	"gitee.com/flycash/broadcast-platform/internal/service/sender"
	"github.com/redis/go-redis/v9"
)

// 结果事件的幂等键保留时长，要显著长于消息在队列里可能滞留的时间
const outcomeIdempotencyTTL = 24 * time.Hour

func InitConsumers(
	senderSvc sender.Sender,
	agg aggregator.Aggregator,
	dispatchProducer mqx.Producer[domain.DispatchMessage],
) []Consumer {
	dispatchConsumer, err := dispatch.NewEventConsumer(senderSvc, InitKafkaConsumer("dispatch"), dispatchProducer)
	if err != nil {
		panic(err)
	}
	outcomeConsumer, err := outcome.NewEventConsumer(agg, InitKafkaConsumer("outcome"))
	if err != nil {
		panic(err)
	}
	return []Consumer{dispatchConsumer, outcomeConsumer}
}

func InitIdempotencyService(rdb redis.Cmdable) idempotent.IdempotencyService {
	return idempotent.NewRedisService(rdb, "broadcast", outcomeIdempotencyTTL)
}
