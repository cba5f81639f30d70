package main

import (
	"log"
	"os"
	"time"

	"github.com/pv/sensor-datagen-go/internal/cli"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink/s3"
)

func main() {
	tool := cli.New("populate-s3", []string{"BUCKET", "PREFIX", "NUM_DEVICES", "START", "END"}, cli.Defaults{
		Stddev: .05,
		Jitter: 10 * time.Millisecond,
		Rotate: time.Hour,
	})
	region := tool.Flags().String("region", "", "AWS region (default from the environment)")
	endpoint := tool.Flags().String("endpoint", "", "custom S3 endpoint, e.g. http://localhost:9000")
	pathStyle := tool.Flags().Bool("path-style", false, "use path-style bucket addressing")
	tempDir := tool.Flags().String("temp-dir", os.TempDir(), "directory for window files before upload")
	args := tool.MustParse()
	if err := s3.CheckRotation(tool.Options.Rotate); err != nil {
		log.Fatalf("populate-s3: %v", err)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	job, err := tool.Setup(ctx, args[2], args[3], args[4])
	if err != nil {
		log.Fatalf("populate-s3: %v", err)
	}
	up, err := s3.New(ctx, s3.Config{
		Bucket:    args[0],
		Prefix:    args[1],
		Region:    *region,
		Endpoint:  *endpoint,
		PathStyle: *pathStyle,
		TempDir:   *tempDir,
	})
	if err != nil {
		log.Fatalf("populate-s3: %v", err)
	}

	s, err := job.Stream(reading.JSON)
	if err != nil {
		log.Fatalf("populate-s3: %v", err)
	}
	// выгрузка идёт внутри переключения окон, отдельный потребитель не нужен
	if err := s.Run(nil, tool.Options.Rotate.Milliseconds(), up.Rotate(ctx)); err != nil {
		up.Discard()
		log.Fatalf("populate-s3: %v", err)
	}
	if err := up.Close(ctx); err != nil {
		log.Fatalf("populate-s3: %v", err)
	}
	log.Printf("populate-s3: uploaded %d files to s3://%s/%s", up.Uploaded(), args[0], args[1])
}
