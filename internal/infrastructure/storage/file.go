package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"IssueSync/internal/domain"
)

const snapshotVersion = 1

type snapshot struct {
	Version int                   `yaml:"version"`
	UDAs    map[string]domain.UDA `yaml:"udas,omitempty"`
	Tasks   []snapshotTask        `yaml:"tasks"`
}

type snapshotTask struct {
	UUID   string                        `yaml:"uuid"`
	Fields map[string]domain.StoredValue `yaml:"fields"`
}

// FileStore is a MemoryStore persisted to a YAML snapshot after every
// mutation. Writes go through a temp file and a rename.
type FileStore struct {
	*MemoryStore
	path string
}

// OpenFileStore loads the snapshot at path; a missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	store := &FileStore{MemoryStore: NewMemoryStore(), path: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	store.persist = store.save
	return store, nil
}

// Path returns the snapshot location.
func (f *FileStore) Path() string {
	return f.path
}

// Close is a no-op; every mutation is already on disk.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read task file: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse task file %s: %w", f.path, err)
	}
	if snap.Version > snapshotVersion {
		return fmt.Errorf("task file %s has unsupported version %d", f.path, snap.Version)
	}

	for _, t := range snap.Tasks {
		fields := domain.DecodeFields(t.Fields)
		fields[domain.FieldUUID] = t.UUID
		f.nextSeq++
		f.tasks[t.UUID] = taskRecord{seq: f.nextSeq, fields: fields}
	}
	for name, uda := range snap.UDAs {
		f.udas[name] = uda
	}
	return nil
}

// save writes the snapshot; the caller holds the store lock.
func (f *FileStore) save() error {
	snap := snapshot{Version: snapshotVersion, UDAs: f.udas}
	for _, id := range f.ordered() {
		fields := domain.EncodeFields(f.tasks[id].fields)
		delete(fields, domain.FieldUUID)
		snap.Tasks = append(snap.Tasks, snapshotTask{UUID: id, Fields: fields})
	}

	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode task file: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create task dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace task file: %w", err)
	}
	return nil
}
