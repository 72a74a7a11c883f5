// Package schema declares the record collections, their indexes and the
// ordered sequence of schema versions, and sequences upgrade transforms when
// a database is opened at an older version.
package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/practice-local/internal/model"
)

// Index is one single-field or compound index over document fields.
type Index struct {
	Fields []string
}

// Name is the engine-level index name: idx_<collection>_<field>[_<field>].
func (i Index) Name(collection string) string {
	return "idx_" + collection + "_" + strings.Join(i.Fields, "_")
}

// Collection is a named record collection with its declared indexes.
type Collection struct {
	Name    string
	Indexes []Index
}

// Row is one stored record as seen by a transform.
type Row struct {
	ID  int64
	Doc model.JSONMap
}

// Handle is the mutable view of one collection a transform works on.
// Writes through a Handle bypass the write hooks.
type Handle interface {
	All(ctx context.Context) ([]Row, error)
	Put(ctx context.Context, id int64, doc model.JSONMap) error
	Insert(ctx context.Context, doc model.JSONMap) (int64, error)
}

// Tx is one version-upgrade transaction.
type Tx interface {
	EnsureCollection(ctx context.Context, c Collection) error
	Collection(name string) Handle
	SetVersion(ctx context.Context, version int) error
	Now() time.Time
	Commit() error
	Rollback() error
}

// Engine is the storage primitive the Manager upgrades.
type Engine interface {
	Version(ctx context.Context) (int, error)
	BeginUpgrade(ctx context.Context) (Tx, error)
}

// Transform is a one-time data transformation bound to a version step.
type Transform interface {
	FromVersion() int
	ToVersion() int
	Apply(ctx context.Context, tx Tx) error
}

// Version is the complete declaration of the schema at one version number.
// Upgrade is optional.
type Version struct {
	Number      int
	Collections []Collection
	Upgrade     Transform
}

func validateVersions(versions []Version) error {
	if len(versions) == 0 {
		return fmt.Errorf("no schema versions declared")
	}
	prev := 0
	for _, v := range versions {
		if v.Number <= prev {
			return fmt.Errorf("schema version %d is not greater than %d", v.Number, prev)
		}
		if v.Upgrade != nil {
			if v.Upgrade.ToVersion() != v.Number || v.Upgrade.FromVersion() != prev {
				return fmt.Errorf("transform for version %d declares %d -> %d",
					v.Number, v.Upgrade.FromVersion(), v.Upgrade.ToVersion())
			}
		}
		prev = v.Number
	}
	return nil
}
