// Package jsonfile persists the service state as JSON files in a state
// directory. Operator-edited files (mapping, office hours, overrides, safe
// hours, approved names) and sync-managed files (memory, cancellations,
// pending approvals, sync state) share the same atomic write-temp-then-rename
// discipline so a crash never leaves a half-written file behind.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/doorsync/internal/persistence"
)

// Paths locates the nine state files.
type Paths struct {
	Mapping       string
	OfficeHours   string
	Overrides     string
	Memory        string
	Cancellations string
	SafeHours     string
	Pending       string
	ApprovedNames string
	SyncState     string
}

// DefaultPaths returns the conventional file layout under a state directory.
func DefaultPaths(stateDir string) Paths {
	return Paths{
		Mapping:       filepath.Join(stateDir, "room-door-mapping.json"),
		OfficeHours:   filepath.Join(stateDir, "office-hours.json"),
		Overrides:     filepath.Join(stateDir, "event-overrides.json"),
		Memory:        filepath.Join(stateDir, "event-memory.json"),
		Cancellations: filepath.Join(stateDir, "cancelled-events.json"),
		SafeHours:     filepath.Join(stateDir, "safe-hours.json"),
		Pending:       filepath.Join(stateDir, "pending-approvals.json"),
		ApprovedNames: filepath.Join(stateDir, "approved-event-names.json"),
		SyncState:     filepath.Join(stateDir, "sync-state.json"),
	}
}

// Store implements every store interface in the persistence package over
// JSON files.
type Store struct {
	paths Paths

	// Serializes writes so a dashboard save and a sync-cycle save cannot
	// interleave their rename steps on the same file.
	mu sync.Mutex
}

// New returns a Store reading and writing the given paths.
func New(paths Paths) *Store {
	return &Store{paths: paths}
}

// load decodes path into out. It reports found=false without error when the
// file does not exist or is empty.
func (s *Store) load(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("jsonfile: read %s: %w", filepath.Base(path), err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", persistence.ErrMalformed, filepath.Base(path), err)
	}

	return true, nil
}

// save writes value to path atomically: encode, write a sibling temp file,
// fsync, rename over the target.
func (s *Store) save(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsonfile: temp file for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: replace %s: %w", filepath.Base(path), err)
	}

	return nil
}

// --- MappingStore implementation ---

// LoadMapping reads room-door-mapping.json. An absent file yields an empty
// mapping, which the mapping service rejects as unconfigured.
func (s *Store) LoadMapping(ctx context.Context) (persistence.RoomDoorMapping, error) {
	var mapping persistence.RoomDoorMapping
	if _, err := s.load(s.paths.Mapping, &mapping); err != nil {
		return persistence.RoomDoorMapping{}, err
	}
	return mapping, nil
}

// SaveMapping writes room-door-mapping.json preserving door order.
func (s *Store) SaveMapping(ctx context.Context, mapping persistence.RoomDoorMapping) error {
	return s.save(s.paths.Mapping, mapping)
}

// --- OfficeHoursStore implementation ---

// LoadOfficeHours reads office-hours.json. Absent file yields a disabled
// schedule.
func (s *Store) LoadOfficeHours(ctx context.Context) (persistence.OfficeHours, error) {
	var hours persistence.OfficeHours
	if _, err := s.load(s.paths.OfficeHours, &hours); err != nil {
		return persistence.OfficeHours{}, err
	}
	return hours, nil
}

// SaveOfficeHours writes office-hours.json.
func (s *Store) SaveOfficeHours(ctx context.Context, hours persistence.OfficeHours) error {
	return s.save(s.paths.OfficeHours, hours)
}

// --- OverrideStore implementation ---

// LoadOverrides reads event-overrides.json. Absent file yields no overrides.
func (s *Store) LoadOverrides(ctx context.Context) (persistence.EventOverrides, error) {
	overrides := persistence.EventOverrides{}
	if _, err := s.load(s.paths.Overrides, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

// SaveOverrides writes event-overrides.json.
func (s *Store) SaveOverrides(ctx context.Context, overrides persistence.EventOverrides) error {
	if overrides == nil {
		overrides = persistence.EventOverrides{}
	}
	return s.save(s.paths.Overrides, overrides)
}

// --- MemoryStore implementation ---

// LoadMemory reads event-memory.json. Absent file yields empty memory.
func (s *Store) LoadMemory(ctx context.Context) (persistence.EventMemory, error) {
	memory := persistence.EventMemory{}
	if _, err := s.load(s.paths.Memory, &memory); err != nil {
		return nil, err
	}
	return memory, nil
}

// SaveMemory writes event-memory.json.
func (s *Store) SaveMemory(ctx context.Context, memory persistence.EventMemory) error {
	if memory == nil {
		memory = persistence.EventMemory{}
	}
	return s.save(s.paths.Memory, memory)
}

// --- CancellationStore implementation ---

// LoadCancellations reads cancelled-events.json. Absent file yields an empty
// list.
func (s *Store) LoadCancellations(ctx context.Context) (persistence.CancelledEvents, error) {
	var cancelled persistence.CancelledEvents
	if _, err := s.load(s.paths.Cancellations, &cancelled); err != nil {
		return persistence.CancelledEvents{}, err
	}
	return cancelled, nil
}

// SaveCancellations writes cancelled-events.json.
func (s *Store) SaveCancellations(ctx context.Context, cancelled persistence.CancelledEvents) error {
	return s.save(s.paths.Cancellations, cancelled)
}

// --- SafeHoursStore implementation ---

// LoadSafeHours reads safe-hours.json, folding legacy flat keys. Absent file
// yields no per-day entries; evaluation falls back to the built-in default.
func (s *Store) LoadSafeHours(ctx context.Context) (persistence.SafeHours, error) {
	var hours persistence.SafeHours
	if _, err := s.load(s.paths.SafeHours, &hours); err != nil {
		return persistence.SafeHours{}, err
	}
	return hours, nil
}

// SaveSafeHours writes safe-hours.json in the per-day form.
func (s *Store) SaveSafeHours(ctx context.Context, hours persistence.SafeHours) error {
	return s.save(s.paths.SafeHours, hours)
}

// --- PendingStore implementation ---

// LoadPending reads pending-approvals.json. Absent file yields an empty queue.
func (s *Store) LoadPending(ctx context.Context) (persistence.PendingApprovals, error) {
	pending := persistence.PendingApprovals{}
	if _, err := s.load(s.paths.Pending, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// SavePending writes pending-approvals.json.
func (s *Store) SavePending(ctx context.Context, pending persistence.PendingApprovals) error {
	if pending == nil {
		pending = persistence.PendingApprovals{}
	}
	return s.save(s.paths.Pending, pending)
}

// --- ApprovedNamesStore implementation ---

// LoadApprovedNames reads approved-event-names.json. Absent file yields an
// empty allow-list.
func (s *Store) LoadApprovedNames(ctx context.Context) (persistence.ApprovedNames, error) {
	var names persistence.ApprovedNames
	if _, err := s.load(s.paths.ApprovedNames, &names); err != nil {
		return persistence.ApprovedNames{}, err
	}
	return names, nil
}

// SaveApprovedNames writes approved-event-names.json.
func (s *Store) SaveApprovedNames(ctx context.Context, names persistence.ApprovedNames) error {
	return s.save(s.paths.ApprovedNames, names)
}

// --- SyncStateStore implementation ---

// LoadSyncState reads sync-state.json. Unlike the other loads this reports
// persistence.ErrNotFound for an absent file so startup can distinguish
// "never persisted" from "persisted off".
func (s *Store) LoadSyncState(ctx context.Context) (persistence.SyncState, error) {
	var state persistence.SyncState
	found, err := s.load(s.paths.SyncState, &state)
	if err != nil {
		return persistence.SyncState{}, err
	}
	if !found {
		return persistence.SyncState{}, persistence.ErrNotFound
	}
	return state, nil
}

// SaveSyncState writes sync-state.json.
func (s *Store) SaveSyncState(ctx context.Context, state persistence.SyncState) error {
	return s.save(s.paths.SyncState, state)
}
