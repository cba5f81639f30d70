package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink"
)

const defaultBatchSize = 10000

type Pragmas struct {
	WAL     bool
	SyncOff bool
}

type Config struct {
	Source    string
	Table     string
	BatchSize int
	// Codec: формат входного потока (по умолчанию CSV).
	Codec   reading.Codec
	Pragmas Pragmas
}

// Loader вставляет показания в SQLite пачками, каждая пачка: отдельная транзакция.
type Loader struct {
	db    *sql.DB
	table string
	batch int
	codec reading.Codec
}

func New(ctx context.Context, cfg Config) (*Loader, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}
	db, err := sql.Open("sqlite", NormalizeSource(cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite: ping: %w", sink.ErrConnection, err)
	}
	if err := applyPragmas(ctx, db, cfg.Pragmas); err != nil {
		db.Close()
		return nil, err
	}
	l, err := NewWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewWithDB оборачивает уже открытое соединение.
func NewWithDB(db *sql.DB, cfg Config) (*Loader, error) {
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, fmt.Errorf("sqlite: table name is empty")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	codec := cfg.Codec
	if codec == "" {
		codec = reading.CSV
	}
	return &Loader{db: db, table: quoteIdent(table), batch: batch, codec: codec}, nil
}

func (l *Loader) Close() {
	if l.db != nil {
		l.db.Close()
	}
}

func (l *Loader) EnsureTable(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s(
	device TEXT NOT NULL,
	reported_at TEXT NOT NULL,
	reading REAL NOT NULL
);`, l.table)
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	return nil
}

func (l *Loader) Load(ctx context.Context, r io.Reader) (int64, error) {
	dec := l.codec.NewDecoder(r)
	insertSQL := fmt.Sprintf(`INSERT INTO %s(device, reported_at, reading) VALUES (?, ?, ?)`, l.table)

	var total int64
	for {
		n, done, err := l.loadBatch(ctx, dec, insertSQL)
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			log.Printf("sqlite: inserted %d rows", total)
		}
		if done {
			return total, nil
		}
	}
}

// loadBatch вставляет до l.batch строк одной транзакцией.
func (l *Loader) loadBatch(ctx context.Context, dec *reading.Decoder, insertSQL string) (int64, bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return 0, false, fmt.Errorf("sqlite: prepare insert: %w", err)
	}

	var n int64
	done := false
	for n < int64(l.batch) {
		rd, err := dec.Next()
		if errors.Is(err, io.EOF) {
			done = true
			break
		}
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return 0, false, err
		}
		ts := rd.Time().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, rd.DeviceID, ts, rd.Temperature); err != nil {
			stmt.Close()
			tx.Rollback()
			return 0, false, fmt.Errorf("sqlite: insert device %s: %w", rd.DeviceID, err)
		}
		n++
	}

	stmt.Close()
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("sqlite: commit tx: %w", err)
	}
	return n, done, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, p Pragmas) error {
	var stmts []string
	if p.WAL {
		stmts = append(stmts, "PRAGMA journal_mode=WAL")
	}
	if p.SyncOff {
		stmts = append(stmts, "PRAGMA synchronous=OFF")
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: %s: %w", s, err)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func IsSource(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"),
		src == ":memory:":
		return true
	default:
		return false
	}
}

func NormalizeSource(src string) string {
	if strings.HasPrefix(src, "sqlite://") {
		return strings.TrimPrefix(src, "sqlite://")
	}
	return src
}
