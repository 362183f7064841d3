package source

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers one payload. Close flushes anything still buffered.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes synchronously, one attempt per call, so the
// simulator's failure policy sees every broker error.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              1,
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            1,
			WriteTimeout:           10 * time.Second,
			RequiredAcks:           kafka.RequireOne,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
	return errors.Wrapf(err, "write to %s", p.writer.Topic)
}

func (p *KafkaPublisher) Close() error {
	return errors.Wrap(p.writer.Close(), "close kafka writer")
}
