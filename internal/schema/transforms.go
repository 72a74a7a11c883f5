package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
)

// MigratedNotesTitle marks notes created from the legacy patient notes field.
const MigratedNotesTitle = "Migrated patient notes"

// dateFields lists, per collection, the document paths that hold dates.
// Nested paths use a dot.
var dateFields = map[string][]string{
	hooks.Patients:     {"birthDate", "createdAt", "updatedAt"},
	hooks.Appointments: {"date", "reminderSentAt", "cancelledAt", "createdAt", "updatedAt", "paymentInfo.paidAt"},
	hooks.Notes:        {"createdAt", "updatedAt"},
	hooks.Goals:        {"targetDate", "createdAt", "updatedAt"},
}

// isoDates rewrites dates stored as epoch milliseconds or non-canonical
// strings into canonical ISO-8601 strings.
type isoDates struct{}

func (isoDates) FromVersion() int { return 1 }
func (isoDates) ToVersion() int   { return 2 }

func (isoDates) Apply(ctx context.Context, tx Tx) error {
	for _, name := range []string{hooks.Patients, hooks.Appointments, hooks.Notes, hooks.Goals} {
		h := tx.Collection(name)
		rows, err := h.All(ctx)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		for _, row := range rows {
			changed := false
			for _, path := range dateFields[name] {
				if normalizeDateAt(row.Doc, path) {
					changed = true
				}
			}
			if !changed {
				continue
			}
			if err := h.Put(ctx, row.ID, row.Doc); err != nil {
				return fmt.Errorf("failed to rewrite %s %d: %w", name, row.ID, err)
			}
		}
	}
	return nil
}

func normalizeDateAt(doc model.JSONMap, path string) bool {
	parent := map[string]interface{}(doc)
	key := path
	if i := strings.Index(path, "."); i >= 0 {
		nested, ok := doc[path[:i]].(map[string]interface{})
		if !ok {
			return false
		}
		parent, key = nested, path[i+1:]
	}

	v, ok := parent[key]
	if !ok || v == nil {
		return false
	}
	iso, ok := canonicalDate(v)
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr && s == iso {
		return false
	}
	parent[key] = iso
	return true
}

var legacyLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// canonicalDate reports the canonical form of a stored date value, if it is one.
func canonicalDate(v interface{}) (string, bool) {
	switch val := v.(type) {
	case float64:
		return model.ISO(time.UnixMilli(int64(val))), true
	case string:
		for _, layout := range legacyLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return model.ISO(t), true
			}
		}
	}
	return "", false
}

// patientDefaults backfills status and tags on existing patients.
type patientDefaults struct{}

func (patientDefaults) FromVersion() int { return 2 }
func (patientDefaults) ToVersion() int   { return 3 }

func (patientDefaults) Apply(ctx context.Context, tx Tx) error {
	return backfill(ctx, tx, hooks.Patients, func(doc model.JSONMap) bool {
		changed := false
		if s, _ := doc["status"].(string); s == "" {
			doc["status"] = string(model.PatientStatusActive)
			changed = true
		}
		if _, ok := doc["tags"].([]interface{}); !ok {
			doc["tags"] = []interface{}{}
			changed = true
		}
		return changed
	})
}

// appointmentDefaults backfills price and paymentInfo on existing appointments.
type appointmentDefaults struct {
	price float64
}

func (appointmentDefaults) FromVersion() int { return 3 }
func (appointmentDefaults) ToVersion() int   { return 4 }

func (t appointmentDefaults) Apply(ctx context.Context, tx Tx) error {
	return backfill(ctx, tx, hooks.Appointments, func(doc model.JSONMap) bool {
		changed := false
		if v, ok := doc["price"]; !ok || v == nil {
			doc["price"] = t.price
			changed = true
		}
		if _, ok := doc["paymentInfo"].(map[string]interface{}); !ok {
			doc["paymentInfo"] = map[string]interface{}{"isPaid": false}
			changed = true
		}
		return changed
	})
}

// patientNotesToRecords defaults pinned on notes and moves the legacy
// free-text patients.notes field into standalone general notes.
type patientNotesToRecords struct{}

func (patientNotesToRecords) FromVersion() int { return 4 }
func (patientNotesToRecords) ToVersion() int   { return 5 }

func (patientNotesToRecords) Apply(ctx context.Context, tx Tx) error {
	err := backfill(ctx, tx, hooks.Notes, func(doc model.JSONMap) bool {
		if _, ok := doc["pinned"].(bool); ok {
			return false
		}
		doc["pinned"] = false
		return true
	})
	if err != nil {
		return err
	}

	patients := tx.Collection(hooks.Patients)
	notes := tx.Collection(hooks.Notes)

	rows, err := patients.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read patients: %w", err)
	}
	stamp := model.ISO(tx.Now())
	for _, row := range rows {
		legacy, ok := row.Doc["notes"]
		if !ok {
			continue
		}
		if text, isStr := legacy.(string); isStr && strings.TrimSpace(text) != "" {
			created := stamp
			if s, isStr := row.Doc["createdAt"].(string); isStr && s != "" {
				created = s
			}
			note := model.JSONMap{
				"patientId": row.ID,
				"type":      string(model.NoteTypeGeneral),
				"title":     MigratedNotesTitle,
				"content":   text,
				"pinned":    false,
				"createdAt": created,
				"updatedAt": stamp,
			}
			if _, err := notes.Insert(ctx, note); err != nil {
				return fmt.Errorf("failed to migrate notes of patient %d: %w", row.ID, err)
			}
		}
		delete(row.Doc, "notes")
		if err := patients.Put(ctx, row.ID, row.Doc); err != nil {
			return fmt.Errorf("failed to rewrite patient %d: %w", row.ID, err)
		}
	}
	return nil
}

func backfill(ctx context.Context, tx Tx, collection string, fill func(model.JSONMap) bool) error {
	h := tx.Collection(collection)
	rows, err := h.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", collection, err)
	}
	for _, row := range rows {
		if !fill(row.Doc) {
			continue
		}
		if err := h.Put(ctx, row.ID, row.Doc); err != nil {
			return fmt.Errorf("failed to rewrite %s %d: %w", collection, row.ID, err)
		}
	}
	return nil
}
