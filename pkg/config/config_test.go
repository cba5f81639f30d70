package config

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newFlagSet() (*flag.FlagSet, *float64, *float64, *time.Duration, *bool, *string) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	mean := fs.Float64("mean", 68, "")
	stddev := fs.Float64("stddev", 0.01, "")
	step := fs.Duration("step", time.Second, "")
	wal := fs.Bool("sqlite-wal", false, "")
	metrics := fs.String("metrics-addr", "", "")
	return fs, mean, stddev, step, wal, metrics
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestApplyYAMLDefaults(t *testing.T) {
	path := writeYAML(t, `
generator:
  mean: 70.5
  stddev: 0.2
range:
  step: 10m
sqlite:
  wal: true
metrics:
  addr: ":9464"
unknown:
  key: value
`)
	fs, mean, stddev, step, wal, metrics := newFlagSet()
	if err := ApplyYAMLDefaults(fs, path); err != nil {
		t.Fatalf("ApplyYAMLDefaults: %v", err)
	}
	if *mean != 70.5 || *stddev != 0.2 || *step != 10*time.Minute || !*wal || *metrics != ":9464" {
		t.Fatalf("unexpected values: mean=%v stddev=%v step=%v wal=%v metrics=%q", *mean, *stddev, *step, *wal, *metrics)
	}

	// флаги из командной строки перекрывают YAML
	if err := fs.Parse([]string{"--mean", "60"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *mean != 60 || *stddev != 0.2 {
		t.Fatalf("CLI override failed: mean=%v stddev=%v", *mean, *stddev)
	}
}

func TestApplyYAMLTopLevelFlagNames(t *testing.T) {
	path := writeYAML(t, "mean: 65\nmetrics_addr: localhost:1\n")
	fs, mean, _, _, _, metrics := newFlagSet()
	if err := ApplyYAMLDefaults(fs, path); err != nil {
		t.Fatalf("ApplyYAMLDefaults: %v", err)
	}
	if *mean != 65 || *metrics != "localhost:1" {
		t.Fatalf("mean=%v metrics=%q", *mean, *metrics)
	}
}

func TestApplyYAMLErrors(t *testing.T) {
	fs, _, _, _, _, _ := newFlagSet()
	if err := ApplyYAMLDefaults(fs, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if err := ApplyYAMLDefaults(fs, writeYAML(t, "generator: [unclosed")); err == nil {
		t.Fatalf("expected error for broken YAML")
	}
	if err := ApplyYAMLDefaults(fs, writeYAML(t, "generator:\n  mean: warm\n")); err == nil {
		t.Fatalf("expected error for non-numeric mean")
	}
}

func TestFindYAML(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--config-yaml", "a.yaml", "x"}, "a.yaml"},
		{[]string{"-config-yaml=b.yaml"}, "b.yaml"},
		{[]string{"--mean", "1", "--config-yaml=c.yaml"}, "c.yaml"},
		{[]string{"--config-yaml"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := FindYAML(tt.args); got != tt.want {
			t.Fatalf("FindYAML(%v)=%q want %q", tt.args, got, tt.want)
		}
	}
}

func TestFormatFlagValue(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := formatFlagValue(ts); got != "2024-06-01T00:00:00Z" {
		t.Fatalf("time=%q", got)
	}
	if got := formatFlagValue(90 * time.Second); got != "1m30s" {
		t.Fatalf("duration=%q", got)
	}
	if got := formatFlagValue([]interface{}{"k1:9092", "k2:9092"}); got != "k1:9092,k2:9092" {
		t.Fatalf("list=%q", got)
	}
}

func TestExampleIsApplicable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExample("-", &buf); err != nil {
		t.Fatalf("WriteExample: %v", err)
	}
	if buf.String() != ExampleYAML {
		t.Fatalf("stdout output differs from ExampleYAML")
	}
	path := filepath.Join(t.TempDir(), "nested", "example.yaml")
	if err := WriteExample(path, nil); err != nil {
		t.Fatalf("WriteExample file: %v", err)
	}
	fs, mean, stddev, _, wal, _ := newFlagSet()
	if err := ApplyYAMLDefaults(fs, path); err != nil {
		t.Fatalf("example config does not apply: %v", err)
	}
	if *mean != 68 || *stddev != 0.01 || !*wal {
		t.Fatalf("example values: mean=%v stddev=%v wal=%v", *mean, *stddev, *wal)
	}
}
