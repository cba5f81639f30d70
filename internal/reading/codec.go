package reading

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Codec задаёт текстовое представление показаний в потоке.
type Codec string

const (
	CSV  Codec = "csv"
	JSON Codec = "json"
)

// ParseCodec разбирает имя формата (без учёта регистра).
func ParseCodec(name string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(name))); c {
	case CSV, JSON:
		return c, nil
	default:
		return "", fmt.Errorf("reading: unsupported format %q", name)
	}
}

// Format сериализует показание в одну строку без перевода строки.
func (c Codec) Format(r Reading) string {
	if c == JSON {
		return r.JSON()
	}
	return r.CSV()
}

// NewDecoder читает поток строк, записанный тем же форматом.
func (c Codec) NewDecoder(r io.Reader) *Decoder {
	d := &Decoder{codec: c}
	if c == JSON {
		d.json = json.NewDecoder(r)
	} else {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = 3
		cr.LazyQuotes = true
		cr.ReuseRecord = true
		d.csv = cr
	}
	return d
}

// Decoder восстанавливает Reading из сериализованного потока.
type Decoder struct {
	codec Codec
	csv   *csv.Reader
	json  *json.Decoder
}

type jsonReading struct {
	Device      string   `json:"device"`
	Timestamp   *int64   `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
}

// Next возвращает очередное показание либо io.EOF в конце потока.
func (d *Decoder) Next() (Reading, error) {
	if d.json != nil {
		var raw jsonReading
		if err := d.json.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return Reading{}, io.EOF
			}
			return Reading{}, fmt.Errorf("reading: decode json: %w", err)
		}
		if raw.Device == "" || raw.Timestamp == nil || raw.Temperature == nil {
			return Reading{}, fmt.Errorf("reading: decode json: incomplete object")
		}
		return Reading{DeviceID: raw.Device, Timestamp: *raw.Timestamp, Temperature: *raw.Temperature}, nil
	}

	record, err := d.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Reading{}, io.EOF
		}
		return Reading{}, fmt.Errorf("reading: decode csv: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, record[1])
	if err != nil {
		return Reading{}, fmt.Errorf("reading: decode csv timestamp %q: %w", record[1], err)
	}
	temp, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return Reading{}, fmt.Errorf("reading: decode csv temperature %q: %w", record[2], err)
	}
	return Reading{DeviceID: record[0], Timestamp: ts.UnixMilli(), Temperature: temp}, nil
}
