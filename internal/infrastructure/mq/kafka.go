package mq

import (
	"printpay/internal/config"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

var KafkaProducer sarama.SyncProducer

// InitKafka creates the sync producer used by the outbox sender.
func InitKafka(cfg *config.KafkaConfig) sarama.SyncProducer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		logrus.Fatalf("failed to create Kafka producer: %v", err)
	}

	KafkaProducer = producer
	logrus.Info("Kafka producer created")
	return producer
}

// SendMessage publishes one message. Keyed by gateway order code or
// transaction number so events for the same payment stay ordered.
func SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := KafkaProducer.SendMessage(msg)
	return err
}

func CloseKafka() {
	if KafkaProducer != nil {
		KafkaProducer.Close()
	}
}
