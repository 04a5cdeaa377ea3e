package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

const sendTimeout = 5 * time.Second

// Producer publishes outbox events to Kafka with a synchronous sarama producer.
type Producer struct {
	producer sarama.SyncProducer
	brokers  []string
	logg     *logger.Logger
}

// NewProducer dials the configured brokers.
func NewProducer(cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%s is required for the kafka transport", config.EnvKafkaBrokers)
	}
	prod, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return &Producer{producer: prod, brokers: cfg.Brokers, logg: logg}, nil
}

// NewProducerFrom wraps an existing sarama producer.
func NewProducerFrom(prod sarama.SyncProducer, logg *logger.Logger) *Producer {
	return &Producer{producer: prod, logg: logg}
}

func saramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = true
	sc.Producer.Retry.Max = 3
	sc.Producer.Timeout = sendTimeout
	sc.Net.MaxOpenRequests = 1
	return sc
}

// Publish sends one message keyed by aggregate id so per-order ordering is kept.
func (p *Producer) Publish(ctx context.Context, topic, key string, data []byte, attrs map[string]string) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka producer not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	for k, v := range attrs {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	if p.logg != nil {
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{
			"topic":     topic,
			"partition": partition,
			"offset":    offset,
		}), "kafka message stored")
	}
	return nil
}

// Ping is a no-op once the producer is connected; sarama refreshes metadata itself.
func (p *Producer) Ping(context.Context) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka producer not initialized")
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
