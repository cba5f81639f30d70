// Package cli содержит общую обвязку утилит cmd/*: флаги, разбор позиционных
// аргументов, логирование, метрики и запуск генератора вместе с загрузчиком.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pv/sensor-datagen-go/internal/generator"
	"github.com/pv/sensor-datagen-go/internal/metrics"
	"github.com/pv/sensor-datagen-go/internal/sink"
	"github.com/pv/sensor-datagen-go/internal/stream"
	"github.com/pv/sensor-datagen-go/internal/timerange"
	"github.com/pv/sensor-datagen-go/pkg/config"
)

var (
	// ErrUsage: неверное число позиционных аргументов.
	ErrUsage = errors.New("cli: wrong number of arguments")
	// errExampleWritten означает, что был запрошен --generate-config и работа закончена.
	errExampleWritten = errors.New("cli: example config written")
)

// Defaults: умолчания, которые отличаются между утилитами.
type Defaults struct {
	Mean        float64
	Stddev      float64
	Jitter      time.Duration
	Rotate      time.Duration
	LogInterval time.Duration
}

// Options: общие флаги всех утилит.
type Options struct {
	Mean           float64
	Stddev         float64
	Step           time.Duration
	Jitter         time.Duration
	Seed           int64
	LogInterval    time.Duration
	Rotate         time.Duration
	LogFile        string
	Debug          bool
	MetricsAddr    string
	ConfigYAML     string
	GenerateConfig string
}

// Tool: одна утилита командной строки.
type Tool struct {
	Name       string
	Positional []string
	Options    Options

	fs     *flag.FlagSet
	stderr io.Writer
	stdout io.Writer
}

func New(name string, positional []string, d Defaults) *Tool {
	if d.Mean == 0 {
		d.Mean = 68
	}
	if d.LogInterval == 0 {
		d.LogInterval = 24 * time.Hour
	}
	t := &Tool{
		Name:       name,
		Positional: positional,
		fs:         flag.NewFlagSet(name, flag.ContinueOnError),
		stderr:     os.Stderr,
		stdout:     os.Stdout,
	}
	o := &t.Options
	t.fs.Float64Var(&o.Mean, "mean", d.Mean, "mean temperature")
	t.fs.Float64Var(&o.Stddev, "stddev", d.Stddev, "temperature standard deviation")
	t.fs.DurationVar(&o.Step, "step", time.Second, "interval between timestamps")
	t.fs.DurationVar(&o.Jitter, "jitter", d.Jitter, "timestamp jitter standard deviation (0 disables)")
	t.fs.Int64Var(&o.Seed, "seed", 0, "random seed for device ids and readings (0 = nondeterministic)")
	t.fs.DurationVar(&o.LogInterval, "log-interval", d.LogInterval, "log the generated timestamp every interval")
	t.fs.DurationVar(&o.Rotate, "rotate", d.Rotate, "sink rotation window (0 disables)")
	t.fs.StringVar(&o.LogFile, "log-file", "", "write logs to file instead of stderr")
	t.fs.BoolVar(&o.Debug, "debug", false, "enable verbose debug logs for the generator")
	t.fs.StringVar(&o.MetricsAddr, "metrics-addr", "", "serve Prometheus /metrics on the given addr (e.g. :9464)")
	t.fs.StringVar(&o.ConfigYAML, config.FlagName, "", "path to YAML file with default flag values")
	t.fs.StringVar(&o.GenerateConfig, "generate-config", "", "write example YAML config to file (use '-' for stdout) and exit")
	t.fs.SetOutput(t.stderr)
	t.fs.Usage = t.usage
	return t
}

// Flags возвращает набор флагов для регистрации флагов конкретной утилиты.
func (t *Tool) Flags() *flag.FlagSet { return t.fs }

func (t *Tool) usage() {
	out := t.fs.Output()
	fmt.Fprintf(out, "Usage: %s [options] %s\n\n", t.Name, strings.Join(t.Positional, " "))
	t.fs.PrintDefaults()
}

// Parse применяет умолчания из --config-yaml, разбирает флаги и проверяет
// число позиционных аргументов.
func (t *Tool) Parse(args []string) ([]string, error) {
	if path := config.FindYAML(args); path != "" {
		if err := config.ApplyYAMLDefaults(t.fs, path); err != nil {
			return nil, err
		}
	}
	if err := t.fs.Parse(args); err != nil {
		return nil, err
	}
	if t.Options.GenerateConfig != "" {
		if err := config.WriteExample(t.Options.GenerateConfig, t.stdout); err != nil {
			return nil, err
		}
		return nil, errExampleWritten
	}
	rest := t.fs.Args()
	if len(rest) != len(t.Positional) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUsage, len(rest), len(t.Positional))
	}
	return rest, nil
}

// MustParse разбирает os.Args и завершает процесс при ошибке: неверные
// аргументы печатают usage в stderr и дают код 1.
func (t *Tool) MustParse() []string {
	args, err := t.Parse(os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, errExampleWritten):
		os.Exit(0)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case errors.Is(err, ErrUsage):
		t.usage()
		os.Exit(1)
	default:
		fmt.Fprintf(t.stderr, "%s: %v\n", t.Name, err)
		os.Exit(1)
	}
	if err := configureLogging(t.Options.LogFile); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}
	stream.SetDebugLogging(t.Options.Debug)
	return args
}

func configureLogging(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	log.SetOutput(f)
	return nil
}

// Job описывает подготовленный прогон (устройства, диапазон, метрики).
type Job struct {
	Generators  []*generator.Generator
	Range       timerange.Range
	Metrics     *metrics.Metrics
	Jitter      int64
	LogInterval int64
}

// Setup разбирает NUM_DEVICES, START и END, создаёт генераторы и, если задан
// --metrics-addr, поднимает /metrics до отмены ctx.
func (t *Tool) Setup(ctx context.Context, numDevices, start, end string) (*Job, error) {
	o := t.Options
	count, err := strconv.Atoi(numDevices)
	if err != nil || count <= 0 {
		return nil, fmt.Errorf("cli: invalid number of devices %q", numDevices)
	}
	if o.Jitter < 0 {
		return nil, fmt.Errorf("cli: --jitter must be >= 0")
	}
	r, err := timerange.Parse(start, end, o.Step)
	if err != nil {
		return nil, err
	}

	var gens []*generator.Generator
	if o.Seed != 0 {
		gens = generator.CreateSeeded(count, o.Mean, o.Stddev, o.Seed)
	} else {
		gens = generator.CreateGenerators(count, o.Mean, o.Stddev)
	}
	log.Printf("%s: %d devices, %s, mean=%g stddev=%g", t.Name, count, r, o.Mean, o.Stddev)
	logDeviceIDs(gens)

	job := &Job{
		Generators:  gens,
		Range:       r,
		Metrics:     metrics.New(),
		Jitter:      o.Jitter.Milliseconds(),
		LogInterval: o.LogInterval.Milliseconds(),
	}
	if o.MetricsAddr != "" {
		go func() {
			if err := job.Metrics.Serve(ctx, o.MetricsAddr); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}
	return job, nil
}

func logDeviceIDs(gens []*generator.Generator) {
	const maxLogged = 20
	ids := generator.DeviceIDs(gens)
	if len(ids) > maxLogged {
		log.Printf("device ids: %s ... (%d more)", strings.Join(ids[:maxLogged], ", "), len(ids)-maxLogged)
		return
	}
	log.Printf("device ids: %s", strings.Join(ids, ", "))
}

// Stream создаёт конвейер с заданным форматом строк.
func (j *Job) Stream(f stream.Formatter) (*stream.Stream, error) {
	return stream.New(stream.Config{
		Generators: j.Generators,
		Range:      j.Range,
		Formatter:  f,
		Jitter:     j.Jitter,
		Metrics:    j.Metrics,
	})
}

// Load запускает генератор в фоне и передаёт поток загрузчику. Ошибка
// загрузчика останавливает генератор; ошибка генератора возвращается, даже
// если загрузчик успел принять усечённый поток.
func (j *Job) Load(ctx context.Context, name string, f stream.Formatter, l sink.Loader) (int64, error) {
	s, err := j.Stream(f)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	p := s.Pipe(j.LogInterval)
	n, err := l.Load(ctx, p)
	if err != nil {
		p.Close()
		return n, fmt.Errorf("%s: load: %w", name, err)
	}
	if err := p.Wait(); err != nil {
		return n, fmt.Errorf("%s: generate: %w", name, err)
	}
	j.Metrics.RowsLoaded(name, n)
	log.Printf("%s: loaded %d rows in %s", name, n, time.Since(start).Round(time.Millisecond))
	return n, nil
}

// SignalContext отменяется по SIGINT/SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
