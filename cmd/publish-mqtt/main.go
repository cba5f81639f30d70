package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/mqtt"
)

func main() {
	tool := cli.New("publish-mqtt", []string{"BROKER", "TOPIC_PREFIX", "NUM_DEVICES", "START", "END"}, cli.Defaults{Stddev: .01})
	qos := tool.Flags().Uint("qos", 0, "MQTT QoS level (0, 1 or 2)")
	clientID := tool.Flags().String("client-id", "", "MQTT client id (default: generated)")
	inflight := tool.Flags().Int("batch-size", 256, "publishes in flight before waiting for acknowledgements")
	args := tool.MustParse()

	ctx, stop := cli.SignalContext()
	defer stop()

	if *qos > 2 {
		log.Fatalf("publish-mqtt: invalid --qos %d", *qos)
	}
	job, err := tool.Setup(ctx, args[2], args[3], args[4])
	if err != nil {
		log.Fatalf("publish-mqtt: %v", err)
	}
	pub, err := mqtt.New(ctx, mqtt.Config{
		Broker:      args[0],
		TopicPrefix: args[1],
		ClientID:    *clientID,
		QoS:         byte(*qos),
		Inflight:    *inflight,
		Codec:       reading.JSON,
	})
	if err != nil {
		log.Fatalf("publish-mqtt: %v", err)
	}
	defer pub.Close()

	if _, err := job.Load(ctx, "mqtt", reading.JSON, pub); err != nil {
		log.Fatalf("publish-mqtt: %v", err)
	}
}
