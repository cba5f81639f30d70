package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/pv/sensor-datagen-go/internal/generator"
	"github.com/pv/sensor-datagen-go/internal/metrics"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/timerange"
)

var (
	ErrSinkWrite    = errors.New("stream: sink write failure")
	ErrSinkRotation = errors.New("stream: sink rotation failure")
)

const writeBufferSize = 64 << 10

// Formatter превращает показание в одну строку вывода.
type Formatter interface {
	Format(reading.Reading) string
}

type FormatterFunc func(reading.Reading) string

func (f FormatterFunc) Format(r reading.Reading) string { return f(r) }

// RotateFunc получает текущий sink (nil, если его ещё нет) и timestamp, с которого
// начинается новое окно, и возвращает sink для дальнейшей записи. К моменту
// вызова буфер текущего sink уже сброшен; закрыть или выгрузить его: забота RotateFunc.
type RotateFunc func(current io.Writer, timestamp int64) (io.Writer, error)

// Config описывает один прогон генерации.
type Config struct {
	Generators []*generator.Generator
	Range      timerange.Range
	Formatter  Formatter
	// Jitter > 0 сдвигает timestamp каждого показания на N(0, Jitter) мс.
	Jitter  int64
	Metrics *metrics.Metrics
}

// Stream обходит Range × Generators: все генераторы по очереди для каждого
// timestamp, затем следующий timestamp. Между прогонами состояния нет.
type Stream struct {
	cfg Config
}

func New(cfg Config) (*Stream, error) {
	if cfg.Formatter == nil {
		return nil, fmt.Errorf("stream: formatter is nil")
	}
	if cfg.Range.Interval <= 0 {
		return nil, fmt.Errorf("stream: range interval must be > 0")
	}
	if cfg.Jitter < 0 {
		return nil, fmt.Errorf("stream: jitter must be >= 0")
	}
	return &Stream{cfg: cfg}, nil
}

// Run пишет все показания в w, переключая sink через rotate, когда очередной
// timestamp переходит границу окна rotateEvery (окна выровнены по epoch).
// Если w == nil, rotate вызывается перед первым timestamp. rotateEvery <= 0
// отключает переключение. Run не закрывает sink: это делает вызывающий.
func (s *Stream) Run(w io.Writer, rotateEvery int64, rotate RotateFunc) error {
	return s.run(w, rotateEvery, rotate, true)
}

// run с sinkSwitch=false использует rotate только как отметку интервала
// (лог прогресса в Pipe) и не считает такие вызовы переключениями sink.
func (s *Stream) run(w io.Writer, rotateEvery int64, rotate RotateFunc, sinkSwitch bool) error {
	logDebugf("stream: starting %s, %d devices", s.cfg.Range, len(s.cfg.Generators))

	current := w
	var out *bufio.Writer
	if current != nil {
		out = bufio.NewWriterSize(current, writeBufferSize)
	}

	var lastWindow int64
	haveWindow := false
	it := s.cfg.Range.Iterator()
	for it.HasNext() {
		ts, err := it.Next()
		if err != nil {
			return err
		}

		crossed := false
		if rotateEvery > 0 {
			window := floorDiv(ts, rotateEvery)
			crossed = haveWindow && window != lastWindow
			lastWindow, haveWindow = window, true
		}

		if current == nil || crossed {
			if rotate == nil {
				return fmt.Errorf("%w: no sink and no rotate function", ErrSinkRotation)
			}
			if out != nil {
				if err := out.Flush(); err != nil {
					return fmt.Errorf("%w: flush before rotation: %w", ErrSinkWrite, err)
				}
			}
			next, err := rotate(current, ts)
			if err != nil {
				return fmt.Errorf("%w: at %s: %w", ErrSinkRotation, reading.FormatInstant(ts), err)
			}
			if next == nil {
				return fmt.Errorf("%w: at %s: rotate returned no sink", ErrSinkRotation, reading.FormatInstant(ts))
			}
			if sinkSwitch {
				s.cfg.Metrics.SinkRotated()
			}
			if out == nil {
				out = bufio.NewWriterSize(next, writeBufferSize)
			} else {
				out.Reset(next)
			}
			current = next
		}

		for _, g := range s.cfg.Generators {
			var r reading.Reading
			if s.cfg.Jitter > 0 {
				r = g.NextJittered(ts, s.cfg.Jitter)
			} else {
				r = g.Next(ts)
			}
			if _, err := out.WriteString(s.cfg.Formatter.Format(r)); err != nil {
				return fmt.Errorf("%w: %w", ErrSinkWrite, err)
			}
			if err := out.WriteByte('\n'); err != nil {
				return fmt.Errorf("%w: %w", ErrSinkWrite, err)
			}
			s.cfg.Metrics.ReadingGenerated()
		}
	}

	if out != nil {
		if err := out.Flush(); err != nil {
			return fmt.Errorf("%w: final flush: %w", ErrSinkWrite, err)
		}
	}
	logDebugf("stream: finished")
	return nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
