package persist

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kilupskalvis/bizstore/internal/models"
)

// ExportFileName names an exported backup document after its date.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("bizstore-backup-%s.json", t.Format("2006-01-02"))
}

func backupKey(id string) string { return BackupPrefix + id }

// CreateBackup snapshots every namespace slot and records the snapshot at the
// head of the backup index. The body is written before the index, so a failed
// index write leaves an orphaned snapshot that Reindex can recover.
func (m *Manager) CreateBackup() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBackupLocked()
}

func (m *Manager) createBackupLocked() (string, error) {
	keys, err := m.namespaceKeys()
	if err != nil {
		return "", err
	}

	payload := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := m.medium.Get(k)
		if err != nil {
			return "", fmt.Errorf("read slot %s: %w", k, err)
		}
		if ok {
			payload[k] = v
		}
	}

	snap := models.BackupSnapshot{CreatedAt: m.now().UTC(), Payload: payload}
	return m.storeSnapshotLocked(snap)
}

func (m *Manager) storeSnapshotLocked(snap models.BackupSnapshot) (string, error) {
	id, err := m.newBackupIDLocked(snap.CreatedAt)
	if err != nil {
		return "", err
	}
	snap.ID = id

	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	if err := m.medium.Set(backupKey(id), string(body)); err != nil {
		return "", fmt.Errorf("write backup %s: %w", id, err)
	}

	index := append([]string{id}, m.loadIndexLocked()...)
	if err := m.writeIndexLocked(index); err != nil {
		return id, fmt.Errorf("backup %s written but not indexed: %w", id, err)
	}

	m.logger.Info("backup created", "id", id, "slots", len(snap.Payload))
	return id, nil
}

// newBackupIDLocked derives an id from the creation time in milliseconds,
// suffixing a counter when that id is taken.
func (m *Manager) newBackupIDLocked(t time.Time) (string, error) {
	base := strconv.FormatInt(t.UnixMilli(), 10)
	id := base
	for n := 1; ; n++ {
		_, taken, err := m.medium.Get(backupKey(id))
		if err != nil {
			return "", fmt.Errorf("check backup id: %w", err)
		}
		if !taken {
			return id, nil
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

func (m *Manager) loadIndexLocked() []string {
	raw, ok, err := m.medium.Get(BackupIndexKey)
	if err != nil {
		m.logger.Error("persist: read backup index", "error", err)
		return []string{}
	}
	if !ok {
		return []string{}
	}
	var index []string
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		m.logger.Warn("persist: decode backup index", "error", err)
		return []string{}
	}
	if index == nil {
		return []string{}
	}
	return index
}

func (m *Manager) writeIndexLocked(index []string) error {
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode backup index: %w", err)
	}
	return m.medium.Set(BackupIndexKey, string(data))
}

// ListBackups returns backup ids, most recent first.
func (m *Manager) ListBackups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadIndexLocked()
}

// GetBackup loads a snapshot body.
func (m *Manager) GetBackup(id string) (models.BackupSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBackupLocked(id)
}

func (m *Manager) getBackupLocked(id string) (models.BackupSnapshot, bool) {
	var snap models.BackupSnapshot
	raw, ok, err := m.medium.Get(backupKey(id))
	if err != nil {
		m.logger.Error("persist: read backup", "id", id, "error", err)
		return snap, false
	}
	if !ok {
		return snap, false
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		m.logger.Warn("persist: decode backup", "id", id, "error", err)
		return snap, false
	}
	if snap.Payload == nil {
		snap.Payload = map[string]string{}
	}
	return snap, true
}

// RestoreBackup makes the namespace equal to the snapshot: every snapshot slot
// is overwritten first, then slots the snapshot does not know are removed. A
// missing snapshot is a no-op reported as false. In-memory caches are not
// touched; callers reload them afterwards.
func (m *Manager) RestoreBackup(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.getBackupLocked(id)
	if !ok {
		m.logger.Warn("restore skipped: backup not found", "id", id)
		return false, nil
	}

	if m.safetyBackup {
		safetyID, err := m.createBackupLocked()
		if err != nil {
			return false, fmt.Errorf("safety backup before restore: %w", err)
		}
		m.logger.Info("safety backup taken before restore", "id", safetyID, "restoring", id)
	}

	keys := make([]string, 0, len(snap.Payload))
	for k := range snap.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.medium.Set(k, snap.Payload[k]); err != nil {
			return true, fmt.Errorf("restore slot %s: %w", k, err)
		}
	}

	current, err := m.namespaceKeys()
	if err != nil {
		return true, err
	}
	for _, k := range current {
		if _, keep := snap.Payload[k]; keep {
			continue
		}
		if err := m.medium.Remove(k); err != nil {
			return true, fmt.Errorf("remove slot %s: %w", k, err)
		}
	}

	m.logger.Info("backup restored", "id", id, "slots", len(keys))
	return true, nil
}

// DeleteBackup drops a backup from the index and then removes its body.
func (m *Manager) DeleteBackup(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.loadIndexLocked()
	kept := make([]string, 0, len(index))
	found := false
	for _, existing := range index {
		if existing == id {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if _, exists, _ := m.medium.Get(backupKey(id)); !found && !exists {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}

	if err := m.writeIndexLocked(kept); err != nil {
		return err
	}
	return m.medium.Remove(backupKey(id))
}

// Reindex rebuilds the backup index from the snapshot bodies present in
// storage, most recent first. It picks up snapshots orphaned by a failed
// index write.
func (m *Manager) Reindex() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.medium.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	var snaps []models.BackupSnapshot
	for _, k := range all {
		if k == BackupIndexKey || !strings.HasPrefix(k, BackupPrefix) {
			continue
		}
		if snap, ok := m.getBackupLocked(strings.TrimPrefix(k, BackupPrefix)); ok {
			snaps = append(snaps, snap)
		}
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})

	index := make([]string, len(snaps))
	for i, s := range snaps {
		index[i] = s.ID
	}
	if err := m.writeIndexLocked(index); err != nil {
		return nil, err
	}
	return index, nil
}

// Export writes the snapshot payload as a JSON document.
func (m *Manager) Export(id string, w io.Writer) error {
	snap, ok := m.GetBackup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap.Payload); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Import registers an exported payload as a new snapshot and returns its id.
// Restoring that id is equivalent to restoring the original backup.
func (m *Manager) Import(r io.Reader) (string, error) {
	var payload map[string]string
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode import: %w", err)
	}
	for k := range payload {
		if !InNamespace(k) {
			return "", fmt.Errorf("import slot %q: %w", k, ErrOutsideNamespace)
		}
	}
	if payload == nil {
		payload = map[string]string{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeSnapshotLocked(models.BackupSnapshot{CreatedAt: m.now().UTC(), Payload: payload})
}
