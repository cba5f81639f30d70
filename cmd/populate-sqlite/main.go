package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/sqlite"
)

func main() {
	tool := cli.New("populate-sqlite", []string{"DBPATH", "TABLE", "NUM_DEVICES", "START", "END"}, cli.Defaults{Stddev: .01})
	batchSize := tool.Flags().Int("batch-size", 10000, "rows per transaction")
	createTable := tool.Flags().Bool("create-table", true, "create the table if it does not exist")
	wal := tool.Flags().Bool("sqlite-wal", true, "Enable SQLite WAL mode (PRAGMA journal_mode=WAL)")
	syncOff := tool.Flags().Bool("sqlite-sync-off", true, "Set PRAGMA synchronous=OFF for SQLite")
	args := tool.MustParse()
	if !sqlite.IsSource(args[0]) {
		log.Printf("populate-sqlite: %q does not look like a SQLite database path, creating it anyway", args[0])
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[2], args[3], args[4])
	if err != nil {
		log.Fatalf("populate-sqlite: %v", err)
	}
	loader, err := sqlite.New(ctx, sqlite.Config{
		Source:    args[0],
		Table:     args[1],
		BatchSize: *batchSize,
		Codec:     reading.CSV,
		Pragmas:   sqlite.Pragmas{WAL: *wal, SyncOff: *syncOff},
	})
	if err != nil {
		log.Fatalf("populate-sqlite: %v", err)
	}
	defer loader.Close()

	if *createTable {
		if err := loader.EnsureTable(ctx); err != nil {
			log.Fatalf("populate-sqlite: %v", err)
		}
	}
	if _, err := job.Load(ctx, "sqlite", reading.CSV, loader); err != nil {
		log.Fatalf("populate-sqlite: %v", err)
	}
}
