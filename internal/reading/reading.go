package reading

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Reading: одно показание датчика температуры. Значение неизменяемое.
type Reading struct {
	DeviceID    string
	Timestamp   int64 // миллисекунды epoch
	Temperature float64
}

// Time возвращает момент показания в UTC.
func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// CSV возвращает строку `"<device>","<instant>",<temperature>`.
// Кавычки внутри device не экранируются: идентификаторы генерируются из UUID.
func (r Reading) CSV() string {
	var b strings.Builder
	b.Grow(len(r.DeviceID) + 48)
	b.WriteByte('"')
	b.WriteString(r.DeviceID)
	b.WriteString(`","`)
	b.WriteString(FormatInstant(r.Timestamp))
	b.WriteString(`",`)
	b.WriteString(FormatTemperature(r.Temperature))
	return b.String()
}

// JSON возвращает однострочный объект без завершающего перевода строки.
func (r Reading) JSON() string {
	var b strings.Builder
	b.WriteString(`{"device": `)
	b.WriteString(quoteJSON(r.DeviceID))
	b.WriteString(`, "timestamp": `)
	b.WriteString(strconv.FormatInt(r.Timestamp, 10))
	b.WriteString(`, "temperature": `)
	b.WriteString(FormatTemperature(r.Temperature))
	b.WriteByte('}')
	return b.String()
}

// FormatInstant форматирует миллисекунды epoch как ISO-8601 UTC instant.
// Дробная часть выводится только если она ненулевая (2024-06-01T00:00:00Z,
// 2024-06-01T00:00:00.250Z).
func FormatInstant(ms int64) string {
	t := time.UnixMilli(ms).UTC()
	if ms%1000 == 0 {
		return t.Format("2006-01-02T15:04:05Z")
	}
	return t.Format("2006-01-02T15:04:05.000Z")
}

// FormatTemperature выводит число в привычном для отчётов виде: целые значения
// получают ".0" (68.0), очень большие и очень маленькие значения: экспоненту
// без ведущих нулей (1.0E7, 1.5E-4).
func FormatTemperature(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	abs := math.Abs(v)
	if v == 0 || (abs >= 1e-3 && abs < 1e7) {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsRune(s, '.') {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(v, 'E', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "E")
	if !strings.ContainsRune(mantissa, '.') {
		mantissa += ".0"
	}
	e, err := strconv.Atoi(exp)
	if err != nil {
		return s
	}
	return mantissa + "E" + strconv.Itoa(e)
}

func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
