package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/influxdb"
)

func main() {
	tool := cli.New("populate-influxdb", []string{"DSN", "NUM_DEVICES", "START", "END"}, cli.Defaults{Stddev: .01})
	batchSize := tool.Flags().Int("batch-size", 5000, "points per write request")
	createDB := tool.Flags().Bool("create-table", true, "create the database if it does not exist")
	args := tool.MustParse()
	if !influxdb.IsSource(args[0]) {
		log.Fatalf("populate-influxdb: DSN must start with influxdb:// or influx://, got %q", args[0])
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[1], args[2], args[3])
	if err != nil {
		log.Fatalf("populate-influxdb: %v", err)
	}
	loader, err := influxdb.New(ctx, influxdb.Config{DSN: args[0], BatchSize: *batchSize, Codec: reading.CSV})
	if err != nil {
		log.Fatalf("populate-influxdb: %v", err)
	}
	defer loader.Close()

	if *createDB {
		if err := loader.EnsureDatabase(ctx); err != nil {
			log.Fatalf("populate-influxdb: %v", err)
		}
	}
	if _, err := job.Load(ctx, "influxdb", reading.CSV, loader); err != nil {
		log.Fatalf("populate-influxdb: %v", err)
	}
}
