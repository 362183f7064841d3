package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type TailConfig struct {
	Brokers []string
	Topic   string
	// Max stops after this many messages; 0 reads until idle.
	Max int
	// IdleTimeout ends the read when no message arrives for this long.
	IdleTimeout time.Duration
	// GroupID defaults to a fresh group so every tail starts at the
	// beginning of the topic.
	GroupID string
}

type Message struct {
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// Tail reads the topic from the earliest offset. Cancellation and idleness
// end the read without an error.
func Tail(ctx context.Context, cfg TailConfig, log *zap.SugaredLogger) ([]Message, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("tail needs brokers and a topic")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	if cfg.GroupID == "" {
		cfg.GroupID = fmt.Sprintf("sparklab-tail-%d", time.Now().UnixNano())
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	defer r.Close()

	var msgs []Message
	for cfg.Max == 0 || len(msgs) < cfg.Max {
		rctx, cancel := context.WithTimeout(ctx, cfg.IdleTimeout)
		m, err := r.ReadMessage(rctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Infow("tail cancelled", "read", len(msgs))
				return msgs, nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				log.Infow("tail idle", "read", len(msgs), "idle", cfg.IdleTimeout)
				return msgs, nil
			}
			return msgs, errors.Wrapf(err, "read %s", cfg.Topic)
		}

		msgs = append(msgs, Message{
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			Time:      m.Time,
		})
	}
	return msgs, nil
}
