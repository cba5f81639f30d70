package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pv/sensor-datagen-go/internal/generator"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/stream"
	"github.com/pv/sensor-datagen-go/internal/timerange"
)

func TestArgs(t *testing.T) {
	p, err := NewWithClient(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}), Config{Stream: "readings", MaxLen: 100})
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	defer p.Close()
	a := p.args(reading.Reading{DeviceID: "d1", Timestamp: 1717200000000, Temperature: 68})
	if a.Stream != "readings" || a.MaxLen != 100 || !a.Approx {
		t.Fatalf("unexpected args: %+v", a)
	}
	values := a.Values.(map[string]interface{})
	if values["device"] != "d1" || values["timestamp"] != int64(1717200000000) || values["temperature"] != "68.0" {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error on empty address")
	}
	if _, err := NewWithClient(nil, Config{}); err == nil {
		t.Fatalf("expected error on empty stream")
	}
}

// Integration test. Requires DATAGEN_REDIS_ADDR (host:6379).
func TestPublisher_Redis(t *testing.T) {
	addr := os.Getenv("DATAGEN_REDIS_ADDR")
	if addr == "" {
		t.Skip("DATAGEN_REDIS_ADDR is not set; skipping Redis integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := fmt.Sprintf("datagen-test-%d", time.Now().UnixNano())
	pub, err := New(ctx, Config{Addr: addr, Stream: name, BatchSize: 3})
	if err != nil {
		t.Fatalf("redis.New: %v", err)
	}
	defer pub.Close()
	defer pub.client.Del(context.Background(), name)

	r, _ := timerange.Parse("2024-06-01T00:00:00Z", "2024-06-01T00:00:04Z", time.Second)
	s, _ := stream.New(stream.Config{Generators: generator.CreateSeeded(2, 68, 0.01, 3), Range: r, Formatter: reading.CSV})
	p := s.Pipe(0)
	n, err := pub.Load(ctx, p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("producer: %v", err)
	}
	if n != 8 {
		t.Fatalf("appended %d, want 8", n)
	}
	length, err := pub.client.XLen(ctx, name).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if length != 8 {
		t.Fatalf("stream length %d, want 8", length)
	}
}
