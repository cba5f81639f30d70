package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink"
)

const defaultBatchSize = 1000

type Config struct {
	Brokers   []string
	Topic     string
	BatchSize int
	// Codec: формат входного потока. Значение сообщения всегда JSON.
	Codec reading.Codec
}

// messageWriter: часть *kafka.Writer, нужная публикатору.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher отправляет показания в топик Kafka с ключом device и JSON-значением.
// Hash-балансировщик держит показания одного устройства в одной партиции.
type Publisher struct {
	w     messageWriter
	topic string
	batch int
	codec reading.Codec
}

func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers list is empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is empty")
	}
	conn, err := kafkago.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("%w: kafka: dial %s: %w", sink.ErrConnection, cfg.Brokers[0], err)
	}
	conn.Close()

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,

		AllowAutoTopicCreation: true,
	}
	return newWithWriter(w, cfg), nil
}

func newWithWriter(w messageWriter, cfg Config) *Publisher {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	codec := cfg.Codec
	if codec == "" {
		codec = reading.CSV
	}
	return &Publisher{w: w, topic: cfg.Topic, batch: batch, codec: codec}
}

func (p *Publisher) Close() {
	if err := p.w.Close(); err != nil {
		log.Printf("kafka: close writer: %v", err)
	}
}

func (p *Publisher) Load(ctx context.Context, r io.Reader) (int64, error) {
	dec := p.codec.NewDecoder(r)
	msgs := make([]kafkago.Message, 0, p.batch)
	var total int64

	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := p.w.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("kafka: write %d messages to %s: %w", len(msgs), p.topic, err)
		}
		total += int64(len(msgs))
		log.Printf("kafka: published %d messages to %s", total, p.topic)
		msgs = msgs[:0]
		return nil
	}

	for {
		rd, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		msgs = append(msgs, message(rd))
		if len(msgs) >= p.batch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func message(rd reading.Reading) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(rd.DeviceID),
		Value: []byte(rd.JSON()),
		Time:  rd.Time(),
	}
}

// ParseBrokers разбирает список брокеров через запятую.
func ParseBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
