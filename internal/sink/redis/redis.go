package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink"
)

const defaultBatchSize = 1000

type Config struct {
	Addr      string
	Password  string
	DB        int
	Stream    string
	BatchSize int
	// MaxLen ограничивает длину стрима (XADD MAXLEN ~), 0 снимает ограничение.
	MaxLen int64
	Codec  reading.Codec
}

// Publisher добавляет показания в Redis Stream командами XADD, по пачке на pipeline.
type Publisher struct {
	client goredis.UniversalClient
	stream string
	batch  int
	maxLen int64
	codec  reading.Codec
}

func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: address is empty")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis: ping %s: %w", sink.ErrConnection, cfg.Addr, err)
	}
	return NewWithClient(client, cfg)
}

// NewWithClient использует готовый клиент (например, кластерный).
func NewWithClient(client goredis.UniversalClient, cfg Config) (*Publisher, error) {
	if cfg.Stream == "" {
		return nil, fmt.Errorf("redis: stream name is empty")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	codec := cfg.Codec
	if codec == "" {
		codec = reading.CSV
	}
	return &Publisher{client: client, stream: cfg.Stream, batch: batch, maxLen: cfg.MaxLen, codec: codec}, nil
}

func (p *Publisher) Close() {
	if err := p.client.Close(); err != nil {
		log.Printf("redis: close client: %v", err)
	}
}

func (p *Publisher) Load(ctx context.Context, r io.Reader) (int64, error) {
	dec := p.codec.NewDecoder(r)
	var total int64
	for {
		pipe := p.client.Pipeline()
		n := 0
		done := false
		for n < p.batch {
			rd, err := dec.Next()
			if errors.Is(err, io.EOF) {
				done = true
				break
			}
			if err != nil {
				pipe.Discard()
				return total, err
			}
			pipe.XAdd(ctx, p.args(rd))
			n++
		}
		if n > 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return total, fmt.Errorf("redis: xadd to %s: %w", p.stream, err)
			}
			total += int64(n)
			log.Printf("redis: appended %d entries to %s", total, p.stream)
		}
		if done {
			return total, nil
		}
	}
}

func (p *Publisher) args(rd reading.Reading) *goredis.XAddArgs {
	a := &goredis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"device":      rd.DeviceID,
			"timestamp":   rd.Timestamp,
			"temperature": reading.FormatTemperature(rd.Temperature),
		},
	}
	if p.maxLen > 0 {
		a.MaxLen = p.maxLen
		a.Approx = true
	}
	return a
}
