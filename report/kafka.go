package report

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// Kafka publishes summaries as JSON messages keyed by function name.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka connects a sync producer to brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka: brokers and topic are required")
	}

	conf := sarama.NewConfig()
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Retry.Max = 10
	conf.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, conf)
	if err != nil {
		return nil, errors.Wrap(err, "kafka")
	}
	return NewKafkaProducer(producer, topic), nil
}

// NewKafkaProducer wraps an existing producer.
func NewKafkaProducer(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

func (k *Kafka) Report(_ context.Context, s Summary) error {
	body, err := s.JSON()
	if err != nil {
		return wrapReport(err, "kafka")
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(s.Function),
		Value: sarama.ByteEncoder(body),
	})
	return wrapReport(err, "kafka")
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
