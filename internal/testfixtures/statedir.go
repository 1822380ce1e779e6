package testfixtures

import (
	"testing"

	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/persistence/jsonfile"
)

// StateDirHarness provides store access backed by a temporary state
// directory for integration-style persistence tests. Every field is served
// by the same underlying file store, so writes through one interface are
// visible through the others.
type StateDirHarness struct {
	Mapping       persistence.MappingStore
	OfficeHours   persistence.OfficeHoursStore
	Overrides     persistence.OverrideStore
	Memory        persistence.MemoryStore
	Cancellations persistence.CancellationStore
	SafeHours     persistence.SafeHoursStore
	Pending       persistence.PendingStore
	ApprovedNames persistence.ApprovedNamesStore
	SyncState     persistence.SyncStateStore

	// Dir and Paths let tests place raw file content next to the store,
	// for example to exercise malformed-file handling.
	Dir   string
	Paths jsonfile.Paths
}

// NewStateDirHarness constructs a StateDirHarness over a temporary directory
// that the testing framework removes automatically.
func NewStateDirHarness(tb testing.TB) *StateDirHarness {
	tb.Helper()

	dir := tb.TempDir()
	paths := jsonfile.DefaultPaths(dir)
	store := jsonfile.New(paths)

	return &StateDirHarness{
		Mapping:       store,
		OfficeHours:   store,
		Overrides:     store,
		Memory:        store,
		Cancellations: store,
		SafeHours:     store,
		Pending:       store,
		ApprovedNames: store,
		SyncState:     store,
		Dir:           dir,
		Paths:         paths,
	}
}
