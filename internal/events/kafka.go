package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/observability"
)

// flushTimeoutMs bounds how long Close waits for outstanding deliveries.
const flushTimeoutMs = 5000

// producer is the subset of *kafka.Producer the publisher uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher is a voting.Notifier that publishes transitions to a
// Kafka topic, keyed by answer id so one answer's events stay ordered
// within a partition. Delivery is asynchronous; failures are logged and
// counted, never returned to the voter.
type KafkaPublisher struct {
	producer producer
	topic    string
	logger   *slog.Logger

	done chan struct{}
	once sync.Once
}

// NewKafkaPublisher connects a producer to brokers (comma separated).
func NewKafkaPublisher(brokers, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newKafkaPublisher(p, topic, logger), nil
}

func newKafkaPublisher(p producer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	kp := &KafkaPublisher{
		producer: p,
		topic:    topic,
		logger:   logger.With("component", "kafka"),
		done:     make(chan struct{}),
	}
	go kp.deliveryReports()
	return kp
}

// VoteRecorded implements voting.Notifier.
func (p *KafkaPublisher) VoteRecorded(ctx context.Context, r domain.VoteReceipt) {
	p.publish(ctx, VoteRecordedEvent(r))
}

// AnswerFinalized implements voting.Notifier. Repeat finalizations are not
// republished.
func (p *KafkaPublisher) AnswerFinalized(ctx context.Context, r domain.FinalizationResult) {
	if !r.FirstTime {
		return
	}
	p.publish(ctx, AnswerFinalizedEvent(r))
}

func (p *KafkaPublisher) publish(ctx context.Context, e Event) {
	data, err := e.Encode()
	if err != nil {
		observability.RecordNotifyFailure("kafka")
		p.logger.ErrorContext(ctx, "encode event failed", "type", e.Type, "error", err)
		return
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.AnswerID),
		Value:          data,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		observability.RecordNotifyFailure("kafka")
		p.logger.WarnContext(ctx, "produce event failed", "type", e.Type, "answer_id", e.AnswerID, "error", err)
	}
}

// deliveryReports drains the producer's event channel until Close.
func (p *KafkaPublisher) deliveryReports() {
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-p.producer.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					observability.RecordNotifyFailure("kafka")
					p.logger.Warn("event delivery failed", "key", string(e.Key), "error", e.TopicPartition.Error)
				}
			case kafka.Error:
				p.logger.Warn("kafka producer error", "code", e.Code(), "error", e)
			}
		}
	}
}

// Close flushes outstanding messages and closes the producer.
func (p *KafkaPublisher) Close() {
	p.once.Do(func() {
		if left := p.producer.Flush(flushTimeoutMs); left > 0 {
			p.logger.Warn("unflushed events dropped", "count", left)
		}
		close(p.done)
		p.producer.Close()
	})
}
