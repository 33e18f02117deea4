// Package models defines the data types shared by the local and remote stores.
package models

import "time"

// Record is a single row: column name to scalar or JSON value.
type Record map[string]any

// ID returns the record's "id" column as a string, or "" when absent.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case Record:
		return val.Clone()
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// CloneRecords deep-copies a slice of records. A nil input yields an empty slice.
func CloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// BackupSnapshot is a point-in-time copy of every reserved storage slot.
// Payload maps storage key to the slot's serialized value.
type BackupSnapshot struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Payload   map[string]string `json:"payload"`
}
