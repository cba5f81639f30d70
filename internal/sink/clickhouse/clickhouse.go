package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"strings"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"github.com/pv/sensor-datagen-go/internal/reading"
	"github.com/pv/sensor-datagen-go/internal/sink"
)

const defaultBatchSize = 10000

type Config struct {
	DSN       string
	Table     string
	BatchSize int
	Codec     reading.Codec
}

// Loader отправляет показания в ClickHouse пачками через PrepareBatch.
type Loader struct {
	conn  ch.Conn
	table string
	batch int
	codec reading.Codec
}

func New(ctx context.Context, cfg Config) (*Loader, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("clickhouse: DSN is empty")
	}
	opts, database, err := parseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse DSN: %w", err)
	}
	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: clickhouse: open: %w", sink.ErrConnection, err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: clickhouse: ping: %w", sink.ErrConnection, err)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	codec := cfg.Codec
	if codec == "" {
		codec = reading.CSV
	}
	return &Loader{conn: conn, table: qualifyTable(database, cfg.Table), batch: batch, codec: codec}, nil
}

func (l *Loader) Close() {
	if l.conn != nil {
		l.conn.Close()
	}
}

func (l *Loader) EnsureTable(ctx context.Context) error {
	if err := l.conn.Exec(ctx, createTableSQL(l.table)); err != nil {
		return fmt.Errorf("clickhouse: create table: %w", err)
	}
	return nil
}

func (l *Loader) Load(ctx context.Context, r io.Reader) (int64, error) {
	dec := l.codec.NewDecoder(r)
	insertSQL := fmt.Sprintf("INSERT INTO %s (device, reported_at, reading)", l.table)

	batch, err := l.conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("clickhouse: prepare batch: %w", err)
	}
	rows := 0
	var total int64
	for {
		rd, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			batch.Abort()
			return total, err
		}
		if err := batch.Append(rd.DeviceID, rd.Time(), toDecimal(rd.Temperature)); err != nil {
			batch.Abort()
			return total, fmt.Errorf("clickhouse: append row: %w", err)
		}
		rows++
		if rows >= l.batch {
			if err := batch.Send(); err != nil {
				return total, fmt.Errorf("clickhouse: send batch: %w", err)
			}
			total += int64(rows)
			log.Printf("clickhouse: inserted %d rows into %s", total, l.table)
			batch, err = l.conn.PrepareBatch(ctx, insertSQL)
			if err != nil {
				return total, fmt.Errorf("clickhouse: prepare batch: %w", err)
			}
			rows = 0
		}
	}
	if rows > 0 {
		if err := batch.Send(); err != nil {
			return total, fmt.Errorf("clickhouse: send batch: %w", err)
		}
		total += int64(rows)
	} else {
		batch.Abort()
	}
	log.Printf("clickhouse: done, %d rows into %s", total, l.table)
	return total, nil
}

// toDecimal приводит значение к масштабу столбца Decimal(6,3).
func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(3)
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	device      String,
	reported_at DateTime64(3, 'UTC'),
	reading     Decimal(6, 3)
) ENGINE = MergeTree ORDER BY (device, reported_at)`, table)
}

func parseDSN(dsn string) (*ch.Options, string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, "", err
	}
	host := parsed.Host
	if host == "" {
		host = "localhost:9000"
	}
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "9000")
	}
	database := strings.TrimPrefix(parsed.Path, "/")
	if database == "" {
		database = "default"
	}
	username := parsed.User.Username()
	password, _ := parsed.User.Password()

	return &ch.Options{
		Addr: []string{host},
		Auth: ch.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	}, database, nil
}

func qualifyTable(database, table string) string {
	if table == "" {
		table = "readings"
	}
	if !strings.Contains(table, ".") {
		table = fmt.Sprintf("%s.%s", database, table)
	}
	return table
}

func IsSource(dsn string) bool {
	return strings.HasPrefix(strings.ToLower(dsn), "clickhouse://")
}
