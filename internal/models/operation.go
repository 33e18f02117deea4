package models

import (
	"errors"
	"fmt"
)

// Verb is the kind of a logical data operation.
type Verb string

const (
	VerbQuery  Verb = "query"
	VerbInsert Verb = "insert"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
	VerbUpsert Verb = "upsert"
)

// Order sorts query results by a single column.
type Order struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// Query selects rows by column equality. Page is zero-based and only applies
// when Limit is positive.
type Query struct {
	Filters map[string]any `json:"filters,omitempty"`
	Order   *Order         `json:"order,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Page    int            `json:"page,omitempty"`
}

// Offset returns the number of rows to skip for the requested page.
func (q Query) Offset() int {
	if q.Limit <= 0 || q.Page <= 0 {
		return 0
	}
	return q.Page * q.Limit
}

// Operation is a logical request against a table, independent of which store
// ends up serving it.
type Operation struct {
	Table   string
	Verb    Verb
	Query   Query
	Payload []Record
	ID      string
}

var (
	ErrMissingTable   = errors.New("operation table must not be empty")
	ErrMissingID      = errors.New("operation id must not be empty")
	ErrMissingPayload = errors.New("operation payload must not be empty")
	ErrUnknownVerb    = errors.New("unknown operation verb")
)

// Validate checks that the operation carries what its verb needs.
func (op Operation) Validate() error {
	if op.Table == "" {
		return ErrMissingTable
	}
	switch op.Verb {
	case VerbQuery:
		return nil
	case VerbInsert:
		if len(op.Payload) == 0 {
			return ErrMissingPayload
		}
	case VerbUpdate:
		if op.ID == "" {
			return ErrMissingID
		}
		if len(op.Payload) != 1 {
			return fmt.Errorf("%w: update takes exactly one patch", ErrMissingPayload)
		}
	case VerbDelete:
		if op.ID == "" {
			return ErrMissingID
		}
	case VerbUpsert:
		if len(op.Payload) != 1 {
			return fmt.Errorf("%w: upsert takes exactly one record", ErrMissingPayload)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVerb, op.Verb)
	}
	return nil
}

// QueryOp builds a query operation.
func QueryOp(table string, q Query) Operation {
	return Operation{Table: table, Verb: VerbQuery, Query: q}
}

// InsertOp builds an insert of one or more records.
func InsertOp(table string, records ...Record) Operation {
	return Operation{Table: table, Verb: VerbInsert, Payload: records}
}

// UpdateOp builds a partial update of the record with id.
func UpdateOp(table, id string, patch Record) Operation {
	return Operation{Table: table, Verb: VerbUpdate, ID: id, Payload: []Record{patch}}
}

// DeleteOp builds a removal of the record with id.
func DeleteOp(table, id string) Operation {
	return Operation{Table: table, Verb: VerbDelete, ID: id}
}

// UpsertOp builds an insert-or-update of record.
func UpsertOp(table string, record Record) Operation {
	return Operation{Table: table, Verb: VerbUpsert, ID: record.ID(), Payload: []Record{record}}
}
