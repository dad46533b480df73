// Package events publishes domain events to Kafka. Publishing is strictly
// best-effort: the payment flow never fails or blocks on the broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaPublisher emits payment events through a Sarama async producer.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher connects an async producer to the given brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	go p.drainErrors()
	return p, nil
}

func (p *KafkaPublisher) drainErrors() {
	for err := range p.producer.Errors() {
		p.logger.Warn("payment event delivery failed", zap.Error(err))
	}
}

// PublishPaymentEvent enqueues the event, keyed by wallet so one wallet's
// events stay ordered on a single partition.
func (p *KafkaPublisher) PublishPaymentEvent(_ context.Context, ev *domain.PaymentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.WalletID),
		Value: sarama.ByteEncoder(payload),
	}
	return nil
}

// Close flushes buffered messages and stops the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishPaymentEvent(context.Context, *domain.PaymentEvent) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }
