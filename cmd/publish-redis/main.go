package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/redis"
)

func main() {
	tool := cli.New("publish-redis", []string{"ADDR", "STREAM", "NUM_DEVICES", "START", "END"}, cli.Defaults{Stddev: .01})
	password := tool.Flags().String("password", "", "Redis password")
	db := tool.Flags().Int("db", 0, "Redis database number")
	batchSize := tool.Flags().Int("batch-size", 1000, "XADD commands per pipeline")
	maxLen := tool.Flags().Int64("maxlen", 0, "approximate stream length cap (0 = unlimited)")
	args := tool.MustParse()

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[2], args[3], args[4])
	if err != nil {
		log.Fatalf("publish-redis: %v", err)
	}
	pub, err := redis.New(ctx, redis.Config{
		Addr:      args[0],
		Password:  *password,
		DB:        *db,
		Stream:    args[1],
		BatchSize: *batchSize,
		MaxLen:    *maxLen,
		Codec:     reading.CSV,
	})
	if err != nil {
		log.Fatalf("publish-redis: %v", err)
	}
	defer pub.Close()

	if _, err := job.Load(ctx, "redis", reading.CSV, pub); err != nil {
		log.Fatalf("publish-redis: %v", err)
	}
}
