package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var ErrForwarderFull = errors.New("event forwarder buffer full")

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer that keys messages by resource so events of
// one resource stay ordered within a partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// KafkaForwarder copies bus events to Kafka. Handle only enqueues, so a slow
// broker never blocks a reservation commit; Run does the writing.
type KafkaForwarder struct {
	writer MessageWriter
	queue  chan Event
	logger *zerolog.Logger
}

func NewKafkaForwarder(writer MessageWriter, buffer int, logger *zerolog.Logger) *KafkaForwarder {
	if buffer <= 0 {
		buffer = 256
	}
	return &KafkaForwarder{
		writer: writer,
		queue:  make(chan Event, buffer),
		logger: logger,
	}
}

// Attach subscribes the forwarder to the given event types.
func (f *KafkaForwarder) Attach(bus *EventBus, eventTypes ...string) {
	for _, t := range eventTypes {
		bus.Subscribe(t, f.Handle)
	}
}

// Handle enqueues an event. A full buffer drops the event.
func (f *KafkaForwarder) Handle(event Event) error {
	select {
	case f.queue <- event:
		return nil
	default:
		f.logger.Warn().Str("event_type", event.Type).Str("event_id", event.ID).Msg("kafka forwarder buffer full, dropping event")
		return ErrForwarderFull
	}
}

// Run writes queued events until ctx is done, then flushes what is left
// with a short grace period and closes the writer.
func (f *KafkaForwarder) Run(ctx context.Context) {
	defer func() {
		if err := f.writer.Close(); err != nil {
			f.logger.Error().Err(err).Msg("kafka writer close failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case ev := <-f.queue:
			f.write(ctx, ev)
		}
	}
}

func (f *KafkaForwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-f.queue:
			f.write(ctx, ev)
		default:
			return
		}
	}
}

func (f *KafkaForwarder) write(ctx context.Context, ev Event) {
	msg := kafka.Message{
		Key:   []byte(ev.Key),
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error().Err(err).Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("kafka publish failed")
		return
	}
	f.logger.Debug().Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("event forwarded")
}

// HeaderValue returns the value of a message header, or "".
func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
