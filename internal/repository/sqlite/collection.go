package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/pkg/errors"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Collection is one record collection of the Record Store.
type Collection struct {
	d    *DB
	name string
}

func (d *DB) Collection(name string) *Collection {
	return &Collection{d: d, name: name}
}

func (c *Collection) Name() string {
	return c.name
}

type docRow struct {
	ID  int64  `db:"id"`
	Doc string `db:"doc"`
}

// Add stamps and defaults doc, inserts it and returns the stored document with its id.
func (c *Collection) Add(ctx context.Context, doc model.JSONMap) (out model.JSONMap, err error) {
	start := time.Now()
	defer func() { c.d.metrics.ObserveDB(c.name, "add", start, err) }()

	if err := c.check(); err != nil {
		return nil, err
	}

	prepared := hooks.WithDefaults(c.name, doc, c.d.defaults)
	prepared = hooks.WithTimestamps(prepared, hooks.Create, c.d.now())
	delete(prepared, "id")

	data, err := json.Marshal(prepared)
	if err != nil {
		return nil, errors.BadRequest("document is not serializable", err)
	}

	var id int64
	err = c.d.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO "+c.name+" (doc) VALUES (?)", string(data))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		c.d.log.Error(err, "insert failed", "collection", c.name)
		return nil, errors.NewStorage("add "+c.name, err)
	}

	prepared["id"] = id
	return prepared, nil
}

// Get returns the document stored under id.
func (c *Collection) Get(ctx context.Context, id int64) (out model.JSONMap, err error) {
	start := time.Now()
	defer func() { c.d.metrics.ObserveDB(c.name, "get", start, err) }()

	if err := c.check(); err != nil {
		return nil, err
	}

	var row docRow
	err = c.d.db.GetContext(ctx, &row, "SELECT id, doc FROM "+c.name+" WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(fmt.Sprintf("%s %d", c.name, id), nil)
	}
	if err != nil {
		return nil, errors.NewStorage("get "+c.name, err)
	}
	return decodeRow(row)
}

// Update merges patch into the stored document and stamps updatedAt. A null
// value in patch removes the key. The stored createdAt is never touched.
func (c *Collection) Update(ctx context.Context, id int64, patch model.JSONMap) (out model.JSONMap, err error) {
	start := time.Now()
	defer func() { c.d.metrics.ObserveDB(c.name, "update", start, err) }()

	if err := c.check(); err != nil {
		return nil, err
	}

	stamped := hooks.WithTimestamps(patch, hooks.Update, c.d.now())
	delete(stamped, "id")

	err = c.d.WithTx(ctx, func(tx *sqlx.Tx) error {
		var row docRow
		err := tx.GetContext(ctx, &row, "SELECT id, doc FROM "+c.name+" WHERE id = ?", id)
		if err == sql.ErrNoRows {
			return errors.NotFound(fmt.Sprintf("%s %d", c.name, id), nil)
		}
		if err != nil {
			return err
		}
		doc, err := decodeRow(row)
		if err != nil {
			return err
		}
		out = merge(doc, stamped)
		return writeDoc(ctx, tx, c.name, id, out)
	})
	if errors.Is(err, errors.NotFoundErr) {
		return nil, err
	}
	if err != nil {
		c.d.log.Error(err, "update failed", "collection", c.name, "id", id)
		return nil, errors.NewStorage("update "+c.name, err)
	}
	return out, nil
}

// Delete removes the record stored under id.
func (c *Collection) Delete(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { c.d.metrics.ObserveDB(c.name, "delete", start, err) }()

	if err := c.check(); err != nil {
		return err
	}

	res, err := c.d.db.ExecContext(ctx, "DELETE FROM "+c.name+" WHERE id = ?", id)
	if err != nil {
		return errors.NewStorage("delete "+c.name, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.NewStorage("delete "+c.name, err)
	}
	if rows == 0 {
		return errors.NotFound(fmt.Sprintf("%s %d", c.name, id), nil)
	}
	return nil
}

func (c *Collection) check() error {
	if !identPattern.MatchString(c.name) {
		return errors.BadRequest(fmt.Sprintf("invalid collection name %q", c.name), nil)
	}
	return nil
}

func decodeRow(row docRow) (model.JSONMap, error) {
	var doc model.JSONMap
	if err := json.Unmarshal([]byte(row.Doc), &doc); err != nil {
		return nil, fmt.Errorf("corrupt document %d: %w", row.ID, err)
	}
	doc["id"] = row.ID
	return doc, nil
}

func writeDoc(ctx context.Context, tx *sqlx.Tx, collection string, id int64, doc model.JSONMap) error {
	stored := doc.Clone()
	delete(stored, "id")
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "UPDATE "+collection+" SET doc = ? WHERE id = ?", string(data), id)
	return err
}

func merge(doc, patch model.JSONMap) model.JSONMap {
	out := doc.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
