package timerange

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

var (
	// ErrInvalidTimestamp возвращается, если строку не удалось разобрать ни как
	// локальное, ни как ISO-8601 время со смещением.
	ErrInvalidTimestamp = errors.New("timerange: invalid timestamp")
	// ErrOutOfRange возвращается при вызове Next после окончания диапазона.
	ErrOutOfRange = errors.New("timerange: can't iterate past end of range")
)

// Локальные формы ISO-8601 (без зоны). Дробная часть секунд принимается парсером
// автоматически, даже если её нет в layout.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// Range: полуинтервал [Start, End) с шагом Interval, все значения в миллисекундах epoch.
// Значение неизменяемое; каждый Iterator начинает обход заново с Start.
type Range struct {
	Start    int64
	End      int64
	Interval int64
}

// New создаёт диапазон. Interval должен быть положительным.
func New(start, end, interval int64) (Range, error) {
	if interval <= 0 {
		return Range{}, fmt.Errorf("timerange: interval must be > 0, got %d", interval)
	}
	return Range{Start: start, End: end, Interval: interval}, nil
}

// Parse создаёт диапазон из ISO-8601 строк (см. ParseTimestamp).
func Parse(start, end string, interval time.Duration) (Range, error) {
	from, err := ParseTimestamp(start)
	if err != nil {
		return Range{}, err
	}
	to, err := ParseTimestamp(end)
	if err != nil {
		return Range{}, err
	}
	return New(from, to, interval.Milliseconds())
}

// ParseTimestamp принимает локальное время ISO-8601 (интерпретируется в зоне
// системы) либо время со смещением/зоной и возвращает миллисекунды epoch.
func ParseTimestamp(value string) (int64, error) {
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t.UnixMilli(), nil
		}
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
}

// Len возвращает количество значений в диапазоне.
func (r Range) Len() int64 {
	if r.Start >= r.End || r.Interval <= 0 {
		return 0
	}
	return (r.End - r.Start + r.Interval - 1) / r.Interval
}

// Iterator возвращает новый курсор, стоящий на Start. Сам диапазон не меняется.
func (r Range) Iterator() *Iterator {
	return &Iterator{r: r, current: r.Start}
}

// All возвращает последовательность для range-over-func.
func (r Range) All() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		it := r.Iterator()
		for it.HasNext() {
			ts, _ := it.Next()
			if !yield(ts) {
				return
			}
		}
	}
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s) step %s",
		time.UnixMilli(r.Start).UTC().Format(time.RFC3339Nano),
		time.UnixMilli(r.End).UTC().Format(time.RFC3339Nano),
		time.Duration(r.Interval)*time.Millisecond)
}

// Iterator: курсор по значениям Range. Удаление элементов не поддерживается.
type Iterator struct {
	r       Range
	current int64
}

func (it *Iterator) HasNext() bool {
	return it.r.Interval > 0 && it.current < it.r.End
}

func (it *Iterator) Next() (int64, error) {
	if !it.HasNext() {
		return 0, ErrOutOfRange
	}
	value := it.current
	it.current += it.r.Interval
	return value, nil
}
