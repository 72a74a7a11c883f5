package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/schema"
)

var _ schema.Engine = (*DB)(nil)

// Version reads the stored schema version.
func (d *DB) Version(ctx context.Context) (int, error) {
	var version int
	if err := d.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// BeginUpgrade opens one version-upgrade transaction. Nothing it does is
// visible until Commit, including the recorded version.
func (d *DB) BeginUpgrade(ctx context.Context) (schema.Tx, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upgrade txn: %w", err)
	}
	return &upgradeTx{tx: tx, now: d.now}, nil
}

type upgradeTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (u *upgradeTx) EnsureCollection(ctx context.Context, c schema.Collection) error {
	if !identPattern.MatchString(c.Name) {
		return fmt.Errorf("invalid collection name %q", c.Name)
	}

	_, err := u.tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+c.Name+` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc TEXT NOT NULL CHECK (json_valid(doc))
	)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", c.Name, err)
	}

	declared := make(map[string]bool, len(c.Indexes))
	for _, idx := range c.Indexes {
		exprs := make([]string, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			if !identPattern.MatchString(f) {
				return fmt.Errorf("invalid index field %q on %s", f, c.Name)
			}
			exprs = append(exprs, fieldExpr(f))
		}
		name := idx.Name(c.Name)
		declared[name] = true
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, c.Name, strings.Join(exprs, ", "))
		if _, err := u.tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}

	// Indexes dropped from the declaration are dropped from the engine.
	var existing []string
	err = u.tx.SelectContext(ctx, &existing,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?`, c.Name)
	if err != nil {
		return fmt.Errorf("list indexes of %s: %w", c.Name, err)
	}
	for _, name := range existing {
		if !strings.HasPrefix(name, "idx_"+c.Name+"_") || declared[name] {
			continue
		}
		if _, err := u.tx.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return nil
}

func (u *upgradeTx) Collection(name string) schema.Handle {
	return &upgradeHandle{tx: u.tx, name: name}
}

func (u *upgradeTx) SetVersion(ctx context.Context, version int) error {
	_, err := u.tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	if err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (u *upgradeTx) Now() time.Time {
	return u.now()
}

func (u *upgradeTx) Commit() error {
	return u.tx.Commit()
}

func (u *upgradeTx) Rollback() error {
	return u.tx.Rollback()
}

type upgradeHandle struct {
	tx   *sqlx.Tx
	name string
}

func (h *upgradeHandle) All(ctx context.Context) ([]schema.Row, error) {
	if !identPattern.MatchString(h.name) {
		return nil, fmt.Errorf("invalid collection name %q", h.name)
	}
	var rows []docRow
	if err := h.tx.SelectContext(ctx, &rows, "SELECT id, doc FROM "+h.name+" ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]schema.Row, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		delete(doc, "id")
		out = append(out, schema.Row{ID: row.ID, Doc: doc})
	}
	return out, nil
}

func (h *upgradeHandle) Put(ctx context.Context, id int64, doc model.JSONMap) error {
	return writeDoc(ctx, h.tx, h.name, id, doc)
}

func (h *upgradeHandle) Insert(ctx context.Context, doc model.JSONMap) (int64, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	res, err := h.tx.ExecContext(ctx, "INSERT INTO "+h.name+" (doc) VALUES (?)", string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
