package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingKicker struct {
	mu       sync.Mutex
	triggers []string
	fired    chan string
}

func newRecordingKicker() *recordingKicker {
	return &recordingKicker{fired: make(chan string, 8)}
}

func (k *recordingKicker) Kick(_ context.Context, trigger string) {
	k.mu.Lock()
	k.triggers = append(k.triggers, trigger)
	k.mu.Unlock()
	k.fired <- trigger
}

func (k *recordingKicker) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.triggers)
}

func awaitKick(t *testing.T, kicker *recordingKicker) string {
	t.Helper()
	select {
	case trigger := <-kicker.fired:
		return trigger
	case <-time.After(5 * time.Second):
		t.Fatalf("kick never fired")
		return ""
	}
}

func TestWatcher_KicksOnWatchedFileWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mapping := filepath.Join(dir, "room-door-mapping.json")
	kicker := newRecordingKicker()

	w := New(kicker, Config{Paths: []string{mapping}, Debounce: 20 * time.Millisecond}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(mapping, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if trigger := awaitKick(t, kicker); trigger != "files-changed" {
		t.Fatalf("unexpected trigger %q", trigger)
	}
}

func TestWatcher_KicksOnAtomicRename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "office-hours.json")
	kicker := newRecordingKicker()

	w := New(kicker, Config{Paths: []string{target}, Debounce: 20 * time.Millisecond}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	tmp := filepath.Join(dir, "office-hours.json.tmp")
	if err := os.WriteFile(tmp, []byte(`{"enabled":true}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	awaitKick(t, kicker)
}

func TestWatcher_IgnoresUnwatchedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mapping := filepath.Join(dir, "room-door-mapping.json")
	kicker := newRecordingKicker()

	w := New(kicker, Config{Paths: []string{mapping}, Debounce: 10 * time.Millisecond}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "event-memory.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if kicker.count() != 0 {
		t.Fatalf("expected no kicks for service-written file, got %d", kicker.count())
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mapping := filepath.Join(dir, "room-door-mapping.json")
	kicker := newRecordingKicker()

	w := New(kicker, Config{Paths: []string{mapping}, Debounce: 100 * time.Millisecond}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(mapping, []byte(`{}`), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	awaitKick(t, kicker)
	time.Sleep(200 * time.Millisecond)
	if kicker.count() != 1 {
		t.Fatalf("expected one debounced kick, got %d", kicker.count())
	}
}

func TestWatcher_StartRequiresPaths(t *testing.T) {
	t.Parallel()

	w := New(newRecordingKicker(), Config{}, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Fatalf("expected error when nothing to watch")
	}
}
