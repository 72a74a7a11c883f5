package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/pkg/errors"
)

// Clause starts an indexed query on one document field. The field "id" is
// the primary key.
type Clause struct {
	c     *Collection
	field string
}

func (c *Collection) Where(field string) *Clause {
	return &Clause{c: c, field: field}
}

// All selects every record of the collection.
func (c *Collection) All() *Query {
	return &Query{c: c, kind: "all"}
}

func (cl *Clause) expr() string {
	if cl.field == "id" {
		return "id"
	}
	return fieldExpr(cl.field)
}

func fieldExpr(field string) string {
	return fmt.Sprintf("json_extract(doc, '$.%s')", field)
}

func (cl *Clause) query(kind, where string, args ...interface{}) *Query {
	q := &Query{c: cl.c, kind: kind, where: where, args: args}
	if !identPattern.MatchString(cl.field) {
		q.err = errors.BadRequest(fmt.Sprintf("invalid field name %q", cl.field), nil)
	}
	return q
}

func (cl *Clause) Equals(v interface{}) *Query {
	return cl.query("equals", cl.expr()+" = ?", v)
}

// AnyOf matches any of vs in one query. An empty set matches nothing without
// touching the engine.
func (cl *Clause) AnyOf(vs ...interface{}) *Query {
	q := cl.query("anyof", cl.expr()+" IN (?)", vs)
	q.expand = true
	q.empty = len(vs) == 0
	return q
}

// Between matches lo <= field < hi.
func (cl *Clause) Between(lo, hi interface{}) *Query {
	return cl.query("between", cl.expr()+" >= ? AND "+cl.expr()+" < ?", lo, hi)
}

func (cl *Clause) Above(v interface{}) *Query {
	return cl.query("above", cl.expr()+" > ?", v)
}

func (cl *Clause) Below(v interface{}) *Query {
	return cl.query("below", cl.expr()+" < ?", v)
}

// Missing matches records where the field is absent or null.
func (cl *Clause) Missing() *Query {
	return cl.query("missing", cl.expr()+" IS NULL")
}

// Query is a built, not yet executed, indexed query.
type Query struct {
	c       *Collection
	kind    string
	where   string
	args    []interface{}
	expand  bool
	empty   bool
	orderBy string
	desc    bool
	limit   int
	err     error
}

// OrderBy sorts by a document field, ascending unless Reverse is called.
func (q *Query) OrderBy(field string) *Query {
	if !identPattern.MatchString(field) {
		q.err = errors.BadRequest(fmt.Sprintf("invalid field name %q", field), nil)
		return q
	}
	q.orderBy = field
	return q
}

func (q *Query) Reverse() *Query {
	q.desc = true
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) build(selectClause string, ordered bool) (string, []interface{}, error) {
	if err := q.c.check(); err != nil {
		return "", nil, err
	}
	if q.err != nil {
		return "", nil, q.err
	}

	var b strings.Builder
	b.WriteString(selectClause)
	b.WriteString(" FROM ")
	b.WriteString(q.c.name)
	if q.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.where)
	}
	switch {
	case !ordered:
	case q.orderBy != "":
		b.WriteString(" ORDER BY ")
		if q.orderBy == "id" {
			b.WriteString("id")
		} else {
			b.WriteString(fieldExpr(q.orderBy))
		}
		if q.desc {
			b.WriteString(" DESC")
		}
	default:
		b.WriteString(" ORDER BY id")
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	}

	query, args := b.String(), q.args
	if q.expand {
		var err error
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return "", nil, err
		}
	}
	return q.c.d.db.Rebind(query), args, nil
}

// Find executes the query and returns the matching documents.
func (q *Query) Find(ctx context.Context) (out []model.JSONMap, err error) {
	if q.empty {
		return []model.JSONMap{}, nil
	}
	start := time.Now()
	defer func() { q.c.d.metrics.ObserveDB(q.c.name, q.kind, start, err) }()

	query, args, err := q.build("SELECT id, doc", true)
	if err != nil {
		return nil, err
	}

	var rows []docRow
	if err = q.c.d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		q.c.d.log.Error(err, "query failed", "collection", q.c.name, "kind", q.kind)
		return nil, errors.NewStorage("query "+q.c.name, err)
	}

	out = make([]model.JSONMap, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeRow(row)
		if err != nil {
			return nil, errors.NewStorage("query "+q.c.name, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Count returns the number of matching records.
func (q *Query) Count(ctx context.Context) (n int, err error) {
	if q.empty {
		return 0, nil
	}
	start := time.Now()
	defer func() { q.c.d.metrics.ObserveDB(q.c.name, "count", start, err) }()

	query, args, err := q.build("SELECT COUNT(*)", false)
	if err != nil {
		return 0, err
	}

	if err = q.c.d.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, errors.NewStorage("count "+q.c.name, err)
	}
	return n, nil
}

// Delete removes every matching record in one transaction.
func (q *Query) Delete(ctx context.Context) (n int, err error) {
	if q.empty {
		return 0, nil
	}
	start := time.Now()
	defer func() { q.c.d.metrics.ObserveDB(q.c.name, "delete_where", start, err) }()

	ids, err := q.ids(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = q.c.d.WithTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In("DELETE FROM "+q.c.name+" WHERE id IN (?)", ids)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		n = int(affected)
		return err
	})
	if err != nil {
		q.c.d.log.Error(err, "bulk delete failed", "collection", q.c.name)
		return 0, errors.NewStorage("delete "+q.c.name, err)
	}
	return n, nil
}

// Modify merges patch into every matching record in one transaction and
// returns how many were written. No match means no write.
func (q *Query) Modify(ctx context.Context, patch model.JSONMap) (n int, err error) {
	if q.empty {
		return 0, nil
	}
	start := time.Now()
	defer func() { q.c.d.metrics.ObserveDB(q.c.name, "modify", start, err) }()

	query, args, err := q.build("SELECT id, doc", true)
	if err != nil {
		return 0, err
	}

	stamped := hooks.WithTimestamps(patch, hooks.Update, q.c.d.now())
	delete(stamped, "id")

	err = q.c.d.WithTx(ctx, func(tx *sqlx.Tx) error {
		var rows []docRow
		if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
			return err
		}
		for _, row := range rows {
			doc, err := decodeRow(row)
			if err != nil {
				return err
			}
			if err := writeDoc(ctx, tx, q.c.name, row.ID, merge(doc, stamped)); err != nil {
				return err
			}
		}
		n = len(rows)
		return nil
	})
	if err != nil {
		q.c.d.log.Error(err, "bulk modify failed", "collection", q.c.name)
		return 0, errors.NewStorage("modify "+q.c.name, err)
	}
	return n, nil
}

func (q *Query) ids(ctx context.Context) ([]int64, error) {
	query, args, err := q.build("SELECT id", true)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := q.c.d.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, errors.NewStorage("query "+q.c.name, err)
	}
	return ids, nil
}
