package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/clickhouse"
)

func main() {
	tool := cli.New("populate-clickhouse", []string{"DSN", "TABLE", "NUM_DEVICES", "START", "END"}, cli.Defaults{Stddev: .01})
	batchSize := tool.Flags().Int("batch-size", 10000, "rows per INSERT batch")
	createTable := tool.Flags().Bool("create-table", true, "create the table if it does not exist")
	args := tool.MustParse()
	if !clickhouse.IsSource(args[0]) {
		log.Fatalf("populate-clickhouse: DSN must start with clickhouse://, got %q", args[0])
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[2], args[3], args[4])
	if err != nil {
		log.Fatalf("populate-clickhouse: %v", err)
	}
	loader, err := clickhouse.New(ctx, clickhouse.Config{DSN: args[0], Table: args[1], BatchSize: *batchSize, Codec: reading.CSV})
	if err != nil {
		log.Fatalf("populate-clickhouse: %v", err)
	}
	defer loader.Close()

	if *createTable {
		if err := loader.EnsureTable(ctx); err != nil {
			log.Fatalf("populate-clickhouse: %v", err)
		}
	}
	if _, err := job.Load(ctx, "clickhouse", reading.CSV, loader); err != nil {
		log.Fatalf("populate-clickhouse: %v", err)
	}
}
