package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/metrics"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Config struct {
	Path        string
	BusyTimeout time.Duration
	Defaults    hooks.Defaults
}

// DB is the Record Store: an embedded, transactional document engine with one
// table per collection and expression indexes over document fields.
type DB struct {
	db       *sqlx.DB
	defaults hooks.Defaults
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *logger.Logger
}

type Option func(*DB)

// WithClock overrides the clock the timestamp hooks read.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *DB) { d.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(d *DB) { d.log = l.Component("record-store") }
}

// Open opens (or creates) the database file. The schema is not touched;
// run the schema manager before handing the DB to repositories.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("failed to open database: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)",
		cfg.Path, busy.Milliseconds())

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes are serialized per call and a transaction owns the connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{
		db:       db,
		defaults: cfg.Defaults,
		now:      time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// WithTx executes a function within a transaction
func (d *DB) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// SchemaObject is one entry of the engine catalog.
type SchemaObject struct {
	Type string `db:"type"`
	Name string `db:"name"`
	SQL  string `db:"sql"`
}

// Catalog lists tables and indexes in a stable order.
func (d *DB) Catalog(ctx context.Context) ([]SchemaObject, error) {
	var out []SchemaObject
	err := d.db.SelectContext(ctx, &out, `
		SELECT type, name, COALESCE(sql, '') AS sql
		FROM sqlite_master
		WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%'
		ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return out, nil
}
