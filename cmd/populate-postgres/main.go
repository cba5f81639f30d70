package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/postgres"
)

func main() {
	tool := cli.New("populate-postgres",
		[]string{"DBURL", "DBUSER", "DBPASSWORD", "TABLE", "NUM_DEVICES", "START", "END"},
		cli.Defaults{Stddev: .01})
	createTable := tool.Flags().Bool("create-table", true, "create the table if it does not exist")
	maxConns := tool.Flags().Int("max-conns", 2, "connection pool size")
	args := tool.MustParse()
	if !postgres.IsPostgresURL(args[0]) {
		log.Fatalf("populate-postgres: DBURL must be postgres://, postgresql:// or jdbc:postgresql://, got %q", args[0])
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[4], args[5], args[6])
	if err != nil {
		log.Fatalf("populate-postgres: %v", err)
	}
	loader, err := postgres.New(ctx, postgres.Config{
		ConnString: args[0],
		User:       args[1],
		Password:   args[2],
		Table:      args[3],
		MaxConns:   int32(*maxConns),
	})
	if err != nil {
		log.Fatalf("populate-postgres: %v", err)
	}
	defer loader.Close()

	if *createTable {
		if err := loader.EnsureTable(ctx); err != nil {
			log.Fatalf("populate-postgres: %v", err)
		}
	}
	if _, err := job.Load(ctx, "postgres", reading.CSV, loader); err != nil {
		log.Fatalf("populate-postgres: %v", err)
	}
}
