package stream

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pv/sensor-datagen-go/internal/metrics"
	"github.com/pv/sensor-datagen-go/internal/timerange"
)

func TestPipeDeliversOrderedStream(t *testing.T) {
	s := newStream(t, fixedGenerators("a", "b"), 0, 3000, 1000, idFormatter)
	p := s.Pipe(1000)
	data, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := []string{"a@0", "b@0", "a@1000", "b@1000", "a@2000", "b@2000"}
	if got := lines(string(data)); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected output %v", got)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestPipeLargeStreamBackpressure(t *testing.T) {
	// больше буфера записи: генератор обязан дождаться потребителя
	s := newStream(t, fixedGenerators("a", "b", "c", "d"), 0, 50_000_000, 1000, idFormatter)
	p := s.Pipe(3_600_000)

	// даём генератору упереться в полный канал
	time.Sleep(20 * time.Millisecond)
	select {
	case <-p.done:
		t.Fatalf("producer finished without a consumer")
	default:
	}

	data, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 4*50_000 {
		t.Fatalf("got %d lines, want %d", n, 4*50_000)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestPipeSurfacesProducerFailure(t *testing.T) {
	boom := errors.New("generation failed")
	p := startPipe(func(w io.Writer) error {
		if _, err := io.WriteString(w, "partial line\n"); err != nil {
			return err
		}
		return boom
	})
	data, err := io.ReadAll(p)
	if !errors.Is(err, boom) {
		t.Fatalf("consumer saw %v, want producer failure", err)
	}
	if string(data) != "partial line\n" {
		t.Fatalf("unexpected data %q", data)
	}
	if err := p.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait returned %v", err)
	}
}

func TestPipeCloseStopsProducer(t *testing.T) {
	s := newStream(t, fixedGenerators("a", "b"), 0, 100_000_000, 1000, idFormatter)
	p := s.Pipe(0)
	buf := make([]byte, 128)
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Wait(); !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("expected ErrSinkWrite after consumer close, got %v", err)
	}
}

func TestPipeProgressTicksAreNotRotations(t *testing.T) {
	r, _ := timerange.New(0, 3000, 1000)
	m := metrics.New()
	s, err := New(Config{Generators: fixedGenerators("a", "b"), Range: r, Formatter: idFormatter, Metrics: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := s.Pipe(1000)
	if _, err := io.ReadAll(p); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// настоящая ротация на каждом шаге считается
	var sinks []*strings.Builder
	err = s.Run(nil, 1000, func(io.Writer, int64) (io.Writer, error) {
		b := &strings.Builder{}
		sinks = append(sinks, b)
		return b, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	const expected = `
# HELP datagen_readings_generated_total Readings produced by the generation pipeline.
# TYPE datagen_readings_generated_total counter
datagen_readings_generated_total 12
# HELP datagen_sink_rotations_total Times the pipeline switched to a new output sink.
# TYPE datagen_sink_rotations_total counter
datagen_sink_rotations_total 3
`
	err = testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"datagen_readings_generated_total", "datagen_sink_rotations_total")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if len(sinks) != 3 {
		t.Fatalf("rotate called %d times, want 3", len(sinks))
	}
}
