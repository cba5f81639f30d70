package main

import (
	"log"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/file"
)

func main() {
	tool := cli.New("generate-csv", []string{"FILENAME", "NUM_DEVICES", "START", "END"}, cli.Defaults{Stddev: .01})
	args := tool.MustParse()

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[1], args[2], args[3])
	if err != nil {
		log.Fatalf("generate-csv: %v", err)
	}
	out, err := file.New(file.Config{Path: args[0]})
	if err != nil {
		log.Fatalf("generate-csv: %v", err)
	}
	defer out.Close()

	if _, err := job.Load(ctx, "file", reading.CSV, out); err != nil {
		log.Fatalf("generate-csv: %v", err)
	}
}
