package ioc

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gotomicro/ego/core/econf"
)

type kafkaConfig struct {
	Addr     string `yaml:"addr"`
	ClientID string `yaml:"clientID"`
	GroupID  string `yaml:"groupID"`
}

func loadKafkaConfig() kafkaConfig {
	var cfg kafkaConfig
	if err := econf.UnmarshalKey("kafka", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func InitKafkaProducer() *kafka.Producer {
	cfg := loadKafkaConfig()
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Addr,
		"client.id":         cfg.ClientID,
	})
	if err != nil {
		panic(fmt.Sprintf("创建生产者失败: %v", err))
	}
	return producer
}

// InitKafkaConsumer 创建一个手动提交位点的消费者
// 每个消费者组一个实例，调用方负责订阅主题
func InitKafkaConsumer(groupSuffix string) *kafka.Consumer {
	cfg := loadKafkaConfig()
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Addr,
		"group.id":           cfg.GroupID + "-" + groupSuffix,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		panic(fmt.Sprintf("创建消费者失败: %v", err))
	}
	return consumer
}
