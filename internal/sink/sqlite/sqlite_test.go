package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pv/sensor-datagen-go/internal/generator"
	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/stream"
	"github.com/pv/sensor-datagen-go/internal/timerange"
)

func TestLoaderInsertsStream(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "readings.db")
	loader, err := New(ctx, Config{Source: src, Table: "readings", BatchSize: 7, Pragmas: Pragmas{WAL: true, SyncOff: true}})
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(loader.Close)
	if err := loader.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	// повторный вызов не должен падать
	if err := loader.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable twice: %v", err)
	}

	r, _ := timerange.Parse("2024-06-01T00:00:00Z", "2024-06-01T00:00:10Z", time.Second)
	gens := generator.CreateSeeded(2, 68, 0, 11)
	s, err := stream.New(stream.Config{Generators: gens, Range: r, Formatter: reading.CSV})
	if err != nil {
		t.Fatalf("stream.New: %v", err)
	}
	p := s.Pipe(0)
	n, err := loader.Load(ctx, p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("producer: %v", err)
	}
	if n != 20 {
		t.Fatalf("inserted %d rows, want 20", n)
	}

	db, err := sql.Open("sqlite", src)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var count int
	var minTs, firstDevice string
	var avg float64
	if err := db.QueryRow(`SELECT COUNT(*), MIN(reported_at), AVG(reading) FROM readings`).Scan(&count, &minTs, &avg); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 20 || minTs != "2024-06-01T00:00:00Z" || avg != 68 {
		t.Fatalf("unexpected contents: count=%d min=%s avg=%v", count, minTs, avg)
	}
	if err := db.QueryRow(`SELECT device FROM readings ORDER BY rowid LIMIT 1`).Scan(&firstDevice); err != nil {
		t.Fatalf("query device: %v", err)
	}
	if firstDevice != gens[0].DeviceID() {
		t.Fatalf("first row device %s, want %s", firstDevice, gens[0].DeviceID())
	}
}

func TestLoaderJSONCodec(t *testing.T) {
	ctx := context.Background()
	loader, err := New(ctx, Config{Source: filepath.Join(t.TempDir(), "j.db"), Table: "t", Codec: reading.JSON})
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(loader.Close)
	if err := loader.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	in := reading.Reading{DeviceID: "d1", Timestamp: 1717200000500, Temperature: 67.5}.JSON() + "\n"
	n, err := loader.Load(ctx, strings.NewReader(in))
	if err != nil || n != 1 {
		t.Fatalf("Load: n=%d err=%v", n, err)
	}
}

func TestLoaderRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	loader, err := NewWithDB(db, Config{Table: "readings"})
	if err != nil {
		t.Fatalf("NewWithDB: %v", err)
	}

	boom := errors.New("disk I/O error")
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "readings"(device, reported_at, reading)`))
	prep.ExpectExec().
		WithArgs("dev", "2024-06-01T00:00:00Z", 68.0).
		WillReturnError(boom)
	mock.ExpectRollback()

	in := `"dev","2024-06-01T00:00:00Z",68.0` + "\n"
	if _, err := loader.Load(context.Background(), strings.NewReader(in)); !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoaderRollsBackOnProducerError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	loader, err := NewWithDB(db, Config{Table: "readings"})
	if err != nil {
		t.Fatalf("NewWithDB: %v", err)
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "readings"`))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("producer failed")
	r := io.MultiReader(strings.NewReader(`"dev","2024-06-01T00:00:00Z",68.0`+"\n"), errReader{boom})
	if _, err := loader.Load(context.Background(), r); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHelpers(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error on empty source")
	}
	if _, err := NewWithDB(nil, Config{}); err == nil {
		t.Fatalf("expected error on empty table")
	}
	for _, src := range []string{"sqlite://x.db", "file:test.db", "data.db", ":memory:"} {
		if !IsSource(src) {
			t.Fatalf("IsSource(%q) = false", src)
		}
	}
	if IsSource("postgres://x") || IsSource("") {
		t.Fatalf("IsSource false positive")
	}
	if got := NormalizeSource("sqlite://a/b.db"); got != "a/b.db" {
		t.Fatalf("NormalizeSource=%q", got)
	}
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("quoteIdent=%q", got)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
