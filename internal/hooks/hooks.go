// Package hooks enforces write-time invariants on documents before they reach
// the Record Store. Every function returns a new document and leaves its input
// untouched.
package hooks

import (
	"time"

	"github.com/jwalitptl/practice-local/internal/model"
)

// Mode selects which timestamps a write stamps.
type Mode int

const (
	Create Mode = iota
	Update
)

// Collection names the hooks know about.
const (
	Patients     = "patients"
	Appointments = "appointments"
	Notes        = "notes"
	Goals        = "goals"
)

// Defaults holds the configurable default values injected on create.
type Defaults struct {
	AppointmentPrice float64
}

// WithDefaults injects collection-specific defaults for fields that are absent.
// A field holding JSON null, or an empty status string, counts as absent.
func WithDefaults(collection string, doc model.JSONMap, d Defaults) model.JSONMap {
	out := doc.Clone()
	if out == nil {
		out = model.JSONMap{}
	}

	switch collection {
	case Patients:
		if absent(out, "status") {
			out["status"] = string(model.PatientStatusActive)
		}
		if absent(out, "tags") {
			out["tags"] = []interface{}{}
		}
	case Appointments:
		if absent(out, "price") {
			out["price"] = d.AppointmentPrice
		}
		if absent(out, "paymentInfo") {
			out["paymentInfo"] = map[string]interface{}{"isPaid": false}
		}
		if absent(out, "status") {
			out["status"] = string(model.AppointmentStatusScheduled)
		}
		if absent(out, "reminderSent") {
			out["reminderSent"] = false
		}
	case Notes:
		if absent(out, "pinned") {
			out["pinned"] = false
		}
	case Goals:
		if absent(out, "progress") {
			out["progress"] = 0
		}
		if absent(out, "pinned") {
			out["pinned"] = false
		}
	}
	return out
}

// WithTimestamps stamps createdAt and updatedAt on create, only updatedAt on update.
// On update any caller-supplied createdAt is dropped so the stored one survives the merge.
func WithTimestamps(doc model.JSONMap, mode Mode, now time.Time) model.JSONMap {
	out := doc.Clone()
	if out == nil {
		out = model.JSONMap{}
	}

	stamp := model.ISO(now)
	switch mode {
	case Create:
		out["createdAt"] = stamp
		out["updatedAt"] = stamp
	case Update:
		delete(out, "createdAt")
		out["updatedAt"] = stamp
	}
	return out
}

func absent(doc model.JSONMap, key string) bool {
	v, ok := doc[key]
	if !ok || v == nil {
		return true
	}
	if key == "status" {
		if s, isStr := v.(string); isStr && s == "" {
			return true
		}
	}
	return false
}
