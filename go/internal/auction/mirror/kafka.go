package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
)

// KafkaPublisher writes events to one topic, keyed by item id so every
// event of an item lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

// Message builds the Kafka record for an event.
func Message(ev *events.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	key := ev.ItemID()
	if key == "" {
		// generation-wide events such as AUCTIONS_RESET
		key = string(ev.Type)
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "Event-Type", Value: []byte(ev.Type)},
			{Key: "Event-ID", Value: []byte(ev.ID)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev *events.Event) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}

	log.Debug().
		Str("topic", p.writer.Topic).
		Str("event_id", ev.ID).
		Str("key", string(msg.Key)).
		Msg("published to kafka")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
