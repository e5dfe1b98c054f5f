package ioc

import (
	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/event/dispatch"
	"gitee.com/flycash/broadcast-platform/internal/event/outcome"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

func InitDispatchProducer(p *kafka.Producer) mqx.Producer[domain.DispatchMessage] {
	producer, err := mqx.NewGeneralProducer[domain.DispatchMessage](p, dispatch.EventName)
	if err != nil {
		panic(err)
	}
	return producer
}

func InitOutcomeProducer(p *kafka.Producer) mqx.Producer[domain.OutcomeEvent] {
	producer, err := mqx.NewGeneralProducer[domain.OutcomeEvent](p, outcome.EventName)
	if err != nil {
		panic(err)
	}
	return producer
}
