// Package persist owns every read and write of the durable storage medium.
// It serializes structured values to JSON slots inside a reserved key
// namespace and keeps named, timestamped backups of that namespace.
package persist

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kilupskalvis/bizstore/internal/storage"
)

// NamespaceVersion identifies the set of reserved prefixes below. Adding a
// prefix is a namespace change and bumps the version.
const NamespaceVersion = 1

// Reserved key prefixes.
const (
	AppPrefix     = "be_"
	OfflinePrefix = "offline_"
)

// Well-known slots.
const (
	StateKey         = AppPrefix + "state"
	LocalTablePrefix = AppPrefix + "local_"
	BackupPrefix     = "backup_"
	BackupIndexKey   = "backup_index"
)

// Namespace lists the prefixes captured by backups.
var Namespace = []string{AppPrefix, OfflinePrefix}

var (
	ErrOutsideNamespace = errors.New("key is outside the reserved namespace")
	ErrBackupNotFound   = errors.New("backup not found")
)

// InNamespace reports whether key belongs to the reserved namespace.
func InNamespace(key string) bool {
	for _, p := range Namespace {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// LocalTableKey returns the slot holding a local table.
func LocalTableKey(table string) string { return LocalTablePrefix + table }

// OfflineKey returns the slot holding an offline cache of a remote table.
func OfflineKey(table string) string { return OfflinePrefix + table }

// Manager reads and writes durable slots. All writes and the backup
// enumeration are serialized by one mutex.
type Manager struct {
	mu           sync.Mutex
	medium       storage.Medium
	logger       *slog.Logger
	now          func() time.Time
	safetyBackup bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSafetyBackup makes RestoreBackup snapshot the current state first.
func WithSafetyBackup(enabled bool) Option {
	return func(m *Manager) { m.safetyBackup = enabled }
}

// New creates a Manager writing through medium.
func New(medium storage.Medium, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		medium: medium,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save serializes value into key. Failures are logged and reported as false;
// they never propagate.
func (m *Manager) Save(key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		m.logger.Error("persist: encode slot", "key", key, "error", err)
		return false
	}
	return m.SaveRaw(key, string(data))
}

// SaveRaw writes an already serialized value into key.
func (m *Manager) SaveRaw(key, raw string) bool {
	if !InNamespace(key) {
		m.logger.Error("persist: refusing write", "key", key, "error", ErrOutsideNamespace)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.medium.Set(key, raw); err != nil {
		m.logger.Error("persist: write slot", "key", key, "bytes", len(raw), "error", err)
		return false
	}
	return true
}

// Load decodes key into dst. It returns false when the slot is absent or
// cannot be decoded, leaving dst for the caller's default.
func (m *Manager) Load(key string, dst any) bool {
	raw, ok := m.LoadRaw(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		m.logger.Warn("persist: decode slot", "key", key, "error", err)
		return false
	}
	return true
}

// LoadRaw returns the serialized value of key.
func (m *Manager) LoadRaw(key string) (string, bool) {
	raw, ok, err := m.medium.Get(key)
	if err != nil {
		m.logger.Error("persist: read slot", "key", key, "error", err)
		return "", false
	}
	return raw, ok
}

// Remove deletes a namespace slot.
func (m *Manager) Remove(key string) bool {
	if !InNamespace(key) {
		m.logger.Error("persist: refusing remove", "key", key, "error", ErrOutsideNamespace)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.medium.Remove(key); err != nil {
		m.logger.Error("persist: remove slot", "key", key, "error", err)
		return false
	}
	return true
}

// Keys returns the namespace slots currently stored, in ascending order.
func (m *Manager) Keys() []string {
	keys, err := m.namespaceKeys()
	if err != nil {
		m.logger.Error("persist: list slots", "error", err)
		return []string{}
	}
	return keys
}

func (m *Manager) namespaceKeys() ([]string, error) {
	all, err := m.medium.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if InNamespace(k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
