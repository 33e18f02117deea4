package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgerrcode"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/models"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	mu sync.Mutex
	// Tables stores rows by table, in insertion order
	Tables map[string][]models.Record
	// Err can be set to make every method fail
	Err error
	// TableErrs fails only the calls against a given table
	TableErrs map[string]error
	// Calls counts invocations per table
	Calls map[string]int

	seq int
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		Tables:    make(map[string][]models.Record),
		TableErrs: make(map[string]error),
		Calls:     make(map[string]int),
	}
}

// Seed adds rows to a table without counting a call.
func (m *MockStore) Seed(table string, rows ...models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tables[table] = append(m.Tables[table], models.CloneRecords(rows)...)
}

// FailTable makes every call against table return err.
func (m *MockStore) FailTable(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TableErrs[table] = err
}

// CallCount returns how many calls reached table.
func (m *MockStore) CallCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[table]
}

func (m *MockStore) enter(table string) error {
	m.Calls[table]++
	if m.Err != nil {
		return m.Err
	}
	return m.TableErrs[table]
}

// Select returns rows whose columns equal every filter. Ordering compares the
// printed form of the column.
func (m *MockStore) Select(ctx context.Context, table string, q models.Query) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(table); err != nil {
		return nil, err
	}

	out := []models.Record{}
	for _, r := range m.Tables[table] {
		ok := true
		for col, want := range q.Filters {
			if fmt.Sprint(r[col]) != fmt.Sprint(want) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r.Clone())
		}
	}

	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Descending
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][col]), fmt.Sprint(out[j][col])
			if desc {
				return a > b
			}
			return a < b
		})
	}
	if q.Limit > 0 {
		start := q.Offset()
		if start > len(out) {
			start = len(out)
		}
		end := start + q.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, nil
}

// Insert appends records, assigning sequential ids where missing.
func (m *MockStore) Insert(ctx context.Context, table string, records []models.Record) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(table); err != nil {
		return nil, err
	}

	out := make([]models.Record, 0, len(records))
	for _, in := range records {
		rec := in.Clone()
		if rec == nil {
			rec = models.Record{}
		}
		if rec.ID() == "" {
			m.seq++
			rec["id"] = fmt.Sprintf("remote-%d", m.seq)
		}
		if m.indexLocked(table, rec.ID()) >= 0 {
			return nil, &RemoteError{Code: pgerrcode.UniqueViolation, Message: "duplicate key value violates unique constraint", Status: 409}
		}
		m.Tables[table] = append(m.Tables[table], rec)
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Update merges patch into the row with id.
func (m *MockStore) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(table); err != nil {
		return nil, err
	}

	i := m.indexLocked(table, id)
	if i < 0 {
		return nil, noRows(table, id)
	}
	row := m.Tables[table][i]
	for k, v := range patch.Clone() {
		if k != "id" {
			row[k] = v
		}
	}
	return row.Clone(), nil
}

// Delete removes the row with id.
func (m *MockStore) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(table); err != nil {
		return err
	}

	i := m.indexLocked(table, id)
	if i < 0 {
		return noRows(table, id)
	}
	rows := m.Tables[table]
	m.Tables[table] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

// Upsert replaces the row sharing record's id or appends it.
func (m *MockStore) Upsert(ctx context.Context, table string, record models.Record) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(table); err != nil {
		return nil, err
	}

	rec := record.Clone()
	if rec.ID() == "" {
		return nil, &dberr.Error{Kind: dberr.KindUnknown, Message: "upsert requires an id"}
	}
	if i := m.indexLocked(table, rec.ID()); i >= 0 {
		for k, v := range rec {
			m.Tables[table][i][k] = v
		}
		return m.Tables[table][i].Clone(), nil
	}
	m.Tables[table] = append(m.Tables[table], rec)
	return rec.Clone(), nil
}

func (m *MockStore) indexLocked(table, id string) int {
	for i, r := range m.Tables[table] {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
