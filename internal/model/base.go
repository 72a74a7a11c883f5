package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ISOLayout is the wire format for every persisted date: UTC, millisecond precision.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Time is a point in time persisted as an ISO-8601 string.
type Time struct {
	time.Time
}

// NewTime truncates t to millisecond precision so it survives a round trip.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC().Truncate(time.Millisecond)}
}

// TimePtr is a convenience for optional fields.
func TimePtr(t time.Time) *Time {
	v := NewTime(t)
	return &v
}

// ISO formats t in the wire format.
func ISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// ParseISO accepts any RFC 3339 timestamp, with or without fractional seconds.
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func (t Time) String() string {
	return ISO(t.Time)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ISO(t.Time))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be an ISO-8601 string: %w", err)
	}
	parsed, err := ParseISO(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Base contains the fields every persisted record carries.
type Base struct {
	ID        int64 `json:"id,omitempty"`
	CreatedAt Time  `json:"createdAt"`
	UpdatedAt Time  `json:"updatedAt"`
}

// JSONMap is the document representation a record has inside the Record Store.
type JSONMap map[string]interface{}

// Clone returns a shallow copy with nested maps and slices copied as well.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(JSONMap(val).Clone())
	case JSONMap:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}

// ToJSONMap converts a typed record or patch into its document form.
func ToJSONMap(v interface{}) (JSONMap, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc JSONMap
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// FromJSONMap decodes a document into a typed record.
func FromJSONMap(doc JSONMap, out interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
