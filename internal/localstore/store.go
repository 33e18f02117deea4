// Package localstore emulates the remote tables in process. It is the
// fallback target of the router and the offline system of record; every
// mutation is written through the persistence manager.
package localstore

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/models"
	"github.com/kilupskalvis/bizstore/internal/persist"
)

// DefaultIDPrefix marks ids issued by the local store.
const DefaultIDPrefix = "local_"

// Store holds one ordered record sequence per table.
type Store struct {
	mu       sync.Mutex
	persist  *persist.Manager
	logger   *slog.Logger
	tables   map[string][]models.Record
	idPrefix string
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDPrefix sets the prefix of generated ids.
func WithIDPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.idPrefix = prefix
		}
	}
}

// WithClock overrides the clock used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store persisting through pm.
func New(pm *persist.Manager, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		persist:  pm,
		logger:   logger,
		tables:   make(map[string][]models.Record),
		idPrefix: DefaultIDPrefix,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IDPrefix returns the prefix carried by locally generated ids.
func (s *Store) IDPrefix() string { return s.idPrefix }

// IsLocalID reports whether id was issued by this store.
func (s *Store) IsLocalID(id string) bool {
	return id != "" && strings.HasPrefix(id, s.idPrefix)
}

// Query returns the records of table matching every filter. A table that was
// never written yields an empty slice.
func (s *Store) Query(table string, q models.Query) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tableLocked(table)
	matched := make([]models.Record, 0, len(rows))
	for _, r := range rows {
		if matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}

	if q.Order != nil && q.Order.Column != "" {
		col, desc := q.Order.Column, q.Order.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][col], matched[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 {
		start := q.Offset()
		if start >= len(matched) {
			matched = matched[:0]
		} else {
			end := start + q.Limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[start:end]
		}
	}

	return models.CloneRecords(matched)
}

// Insert appends records to table, generating ids where missing.
func (s *Store) Insert(table string, records ...models.Record) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tableLocked(table)
	seen := make(map[string]bool, len(rows)+len(records))
	for _, r := range rows {
		if id, ok := recordKey(r); ok {
			seen[id] = true
		}
	}

	added := make([]models.Record, 0, len(records))
	for _, in := range records {
		rec := in.Clone()
		if rec == nil {
			rec = models.Record{}
		}
		id, ok := recordKey(rec)
		if !ok {
			id = s.newID()
			rec["id"] = id
		}
		if seen[id] {
			return nil, dberr.Conflict(table, id)
		}
		if _, ok := rec["created_at"]; !ok {
			rec["created_at"] = s.now().UTC().Format(time.RFC3339Nano)
		}
		seen[id] = true
		added = append(added, rec)
	}

	s.tables[table] = append(rows, added...)
	s.persistLocked(table)
	return models.CloneRecords(added), nil
}

// Update merges patch into the record with id. The id column is immutable.
func (s *Store) Update(table, id string, patch models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tableLocked(table)
	i := indexOf(rows, id)
	if i < 0 {
		return nil, dberr.NotFound(table, id)
	}

	merged := rows[i].Clone()
	for k, v := range patch.Clone() {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	rows[i] = merged

	s.persistLocked(table)
	return merged.Clone(), nil
}

// Remove deletes the record with id. Removing it a second time fails.
func (s *Store) Remove(table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tableLocked(table)
	i := indexOf(rows, id)
	if i < 0 {
		return dberr.NotFound(table, id)
	}

	s.tables[table] = append(rows[:i:i], rows[i+1:]...)
	s.persistLocked(table)
	return nil
}

// Upsert updates the record sharing record's id, or inserts it.
func (s *Store) Upsert(table string, record models.Record) (models.Record, error) {
	if id, ok := recordKey(record); ok {
		s.mu.Lock()
		exists := indexOf(s.tableLocked(table), id) >= 0
		s.mu.Unlock()
		if exists {
			return s.Update(table, id, record)
		}
	}

	out, err := s.Insert(table, record)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Tables lists the tables loaded in memory, sorted.
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload drops every in-memory table so the next access re-reads durable
// storage. Used after a backup restore.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string][]models.Record)
}

// tableLocked returns the rows of table, loading them from durable storage on
// first touch. Loading never writes.
func (s *Store) tableLocked(table string) []models.Record {
	if rows, ok := s.tables[table]; ok {
		return rows
	}
	var rows []models.Record
	if !s.persist.Load(persist.LocalTableKey(table), &rows) || rows == nil {
		return []models.Record{}
	}
	s.tables[table] = rows
	return rows
}

func (s *Store) persistLocked(table string) {
	if !s.persist.Save(persist.LocalTableKey(table), s.tables[table]) {
		s.logger.Warn("local table kept in memory only", "table", table)
	}
}

func (s *Store) newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return s.idPrefix + uuid.New().String()
	}
	return s.idPrefix + id.String()
}

// recordKey returns the record's id in string form. Any non-nil id counts.
// Numeric ids compare by value, so 42 and 42.0 share the key "42".
func recordKey(r models.Record) (string, bool) {
	v, ok := r["id"]
	if !ok || v == nil {
		return "", false
	}
	if f, isNum := toFloat(v); isNum {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	id := fmt.Sprint(v)
	return id, id != ""
}

func indexOf(rows []models.Record, id string) int {
	for i, r := range rows {
		if key, ok := recordKey(r); ok && key == id {
			return i
		}
	}
	return -1
}
