// Package remote defines the remote table store contract and its PostgREST,
// retrying and in-memory implementations.
package remote

import (
	"context"

	"github.com/kilupskalvis/bizstore/internal/models"
)

// Store is the contract of a remote row store. Implementations return the
// provider's native errors; classification happens in dberr.
type Store interface {
	Select(ctx context.Context, table string, q models.Query) ([]models.Record, error)
	Insert(ctx context.Context, table string, records []models.Record) ([]models.Record, error)
	Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error)
	Delete(ctx context.Context, table, id string) error
	Upsert(ctx context.Context, table string, record models.Record) (models.Record, error)
}

// ErrorResponse is the error body returned by PostgREST.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}
