package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/kafka"
)

func main() {
	tool := cli.New("publish-kafka", []string{"BROKERS", "TOPIC", "NUM_DEVICES", "START", "END"}, cli.Defaults{Stddev: .01})
	batchSize := tool.Flags().Int("batch-size", 1000, "messages per WriteMessages call")
	args := tool.MustParse()

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[2], args[3], args[4])
	if err != nil {
		log.Fatalf("publish-kafka: %v", err)
	}
	pub, err := kafka.New(ctx, kafka.Config{
		Brokers:   kafka.ParseBrokers(args[0]),
		Topic:     args[1],
		BatchSize: *batchSize,
		Codec:     reading.JSON,
	})
	if err != nil {
		log.Fatalf("publish-kafka: %v", err)
	}
	defer pub.Close()

	if _, err := job.Load(ctx, "kafka", reading.JSON, pub); err != nil {
		log.Fatalf("publish-kafka: %v", err)
	}
}
