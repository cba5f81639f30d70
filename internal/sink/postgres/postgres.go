package postgres

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pv/sensor-datagen-go/internal/sink"
)

type Config struct {
	// ConnString: postgres://... либо JDBC-URL вида jdbc:postgresql://host/db.
	ConnString string
	User       string
	Password   string
	Table      string
	MaxConns   int32
}

// Loader загружает CSV-поток в таблицу через COPY ... FROM STDIN.
type Loader struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

func New(ctx context.Context, cfg Config) (*Loader, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is empty")
	}
	table, err := parseTable(cfg.Table)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(NormalizeURL(cfg.ConnString))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.User != "" {
		poolCfg.ConnConfig.User = cfg.User
	}
	if cfg.Password != "" {
		poolCfg.ConnConfig.Password = cfg.Password
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: create pool: %w", sink.ErrConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres: ping: %w", sink.ErrConnection, err)
	}
	log.Printf("postgres: successfully connected to %s/%s", poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Database)
	return &Loader{pool: pool, table: table}, nil
}

func (l *Loader) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// EnsureTable создаёт таблицу, если её нет. Существующая таблица должна иметь ту же схему.
func (l *Loader) EnsureTable(ctx context.Context) error {
	log.Printf("postgres: creating table: %s", l.table.Sanitize())
	if _, err := l.pool.Exec(ctx, createTableSQL(l.table)); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// Load передаёт поток в COPY. Ошибка генератора, пришедшая из r, прерывает COPY.
func (l *Loader) Load(ctx context.Context, r io.Reader) (int64, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: postgres: acquire: %w", sink.ErrConnection, err)
	}
	defer conn.Release()

	log.Printf("postgres: starting copy")
	tag, err := conn.Conn().PgConn().CopyFrom(ctx, r, copySQL(l.table))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy: %w", err)
	}
	log.Printf("postgres: copy completed, %d rows", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func createTableSQL(table pgx.Identifier) string {
	return "create table if not exists " + table.Sanitize() + `
(
    device      text not null,
    reported_at timestamp with time zone not null,
    reading     decimal(6,3) not null
)`
}

func copySQL(table pgx.Identifier) string {
	return "copy " + table.Sanitize() + " from STDIN (format csv)"
}

// parseTable разбирает "table" или "schema.table".
func parseTable(name string) (pgx.Identifier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("postgres: table name is empty")
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("postgres: invalid table name %q", name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("postgres: invalid table name %q", name)
		}
	}
	return pgx.Identifier(parts), nil
}

// NormalizeURL снимает JDBC-префикс: jdbc:postgresql://h/db -> postgresql://h/db.
func NormalizeURL(url string) string {
	if strings.HasPrefix(strings.ToLower(url), "jdbc:") {
		return url[len("jdbc:"):]
	}
	return url
}

func IsPostgresURL(db string) bool {
	db = NormalizeURL(db)
	return strings.HasPrefix(db, "postgres://") || strings.HasPrefix(db, "postgresql://")
}
