package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pv/sensor-datagen-go/internal/generator"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink"
	"github.com/pv/sensor-datagen-go/internal/stream"
	"github.com/pv/sensor-datagen-go/internal/timerange"
)

func TestNewErrorsAndHelpers(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{}); err == nil {
		t.Fatalf("expected error on empty conn string")
	}
	if _, err := New(ctx, Config{ConnString: "postgres://localhost/db"}); err == nil {
		t.Fatalf("expected error on empty table")
	}
	if !IsPostgresURL("postgres://localhost/db") || !IsPostgresURL("postgresql://host/db") || !IsPostgresURL("jdbc:postgresql://host/db") {
		t.Fatalf("IsPostgresURL failed on valid inputs")
	}
	if IsPostgresURL("http://example.com") {
		t.Fatalf("IsPostgresURL false positive")
	}
	if got := NormalizeURL("JDBC:postgresql://h:5432/db"); got != "postgresql://h:5432/db" {
		t.Fatalf("NormalizeURL=%q", got)
	}
}

func TestParseTable(t *testing.T) {
	id, err := parseTable("public.readings")
	if err != nil || !reflect.DeepEqual(id, pgx.Identifier{"public", "readings"}) {
		t.Fatalf("parseTable schema.table: %v %v", id, err)
	}
	for _, bad := range []string{"", "a.b.c", ".x", "x."} {
		if _, err := parseTable(bad); err == nil {
			t.Fatalf("parseTable(%q) expected error", bad)
		}
	}
	if got := copySQL(pgx.Identifier{"readings"}); got != `copy "readings" from STDIN (format csv)` {
		t.Fatalf("copySQL=%q", got)
	}
	ddl := createTableSQL(pgx.Identifier{"public", "readings"})
	for _, want := range []string{`"public"."readings"`, "device      text not null", "reported_at timestamp with time zone not null", "reading     decimal(6,3) not null"} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestNewUnreachableIsConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(ctx, Config{ConnString: "postgres://nobody:x@127.0.0.1:1/none?connect_timeout=1", Table: "t"})
	if !errors.Is(err, sink.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

// Интеграционный тест: требует DATAGEN_POSTGRES_DSN с правом на CREATE TABLE.
func TestLoaderCopy_Postgres(t *testing.T) {
	dsn := os.Getenv("DATAGEN_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DATAGEN_POSTGRES_DSN is not set; skipping Postgres integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	table := fmt.Sprintf("datagen_test_%d", time.Now().UnixNano())
	loader, err := New(ctx, Config{ConnString: dsn, Table: table})
	if err != nil {
		t.Fatalf("postgres.New: %v", err)
	}
	defer loader.Close()
	defer loader.pool.Exec(context.Background(), "drop table if exists "+pgx.Identifier{table}.Sanitize())

	if err := loader.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	r, _ := timerange.Parse("2024-06-01T00:00:00Z", "2024-06-01T00:00:10Z", time.Second)
	s, err := stream.New(stream.Config{
		Generators: generator.CreateSeeded(3, 68, 0.01, 1),
		Range:      r,
		Formatter:  reading.CSV,
	})
	if err != nil {
		t.Fatalf("stream.New: %v", err)
	}
	p := s.Pipe(time.Hour.Milliseconds())
	n, err := loader.Load(ctx, p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("producer: %v", err)
	}
	if n != 30 {
		t.Fatalf("copied %d rows, want 30", n)
	}

	var devices int
	var minTs time.Time
	q := "select count(distinct device), min(reported_at) from " + pgx.Identifier{table}.Sanitize()
	if err := loader.pool.QueryRow(ctx, q).Scan(&devices, &minTs); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if devices != 3 || !minTs.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected table contents: devices=%d min=%s", devices, minTs)
	}
}
