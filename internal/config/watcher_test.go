package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/noor-app/noorvoice/internal/config"
)

const guideConfigV1 = `
server:
  log_level: info
providers:
  live:
    name: gemini-live
  tts:
    name: gemini
guides:
  - id: limanour
    name: Limanour
    instructions: You are a gentle guide for young children.
`

const guideConfigV2 = `
server:
  log_level: info
providers:
  live:
    name: gemini-live
  tts:
    name: gemini
guides:
  - id: limanour
    name: Limanour
    instructions: Speak slowly and use simple words.
`

const brokenConfig = `
server:
  log_level: bananas
`

// reloadRecorder collects watcher callbacks for inspection.
type reloadRecorder struct {
	mu      sync.Mutex
	reloads [][2]*config.Config
	fired   chan struct{}
}

func newReloadRecorder() *reloadRecorder {
	return &reloadRecorder{fired: make(chan struct{}, 8)}
}

func (r *reloadRecorder) apply(old, updated *config.Config) {
	r.mu.Lock()
	r.reloads = append(r.reloads, [2]*config.Config{old, updated})
	r.mu.Unlock()
	select {
	case r.fired <- struct{}{}:
	default:
	}
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reloads)
}

func (r *reloadRecorder) last() (old, updated *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reloads) == 0 {
		return nil, nil
	}
	pair := r.reloads[len(r.reloads)-1]
	return pair[0], pair[1]
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "noorvoice.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func startWatcher(t *testing.T, path string, onChange func(old, updated *config.Config)) *config.Watcher {
	t.Helper()
	w, err := config.NewWatcher(path, onChange, config.WithInterval(25*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherServesInitialConfig(t *testing.T) {
	t.Parallel()
	w := startWatcher(t, writeConfig(t, guideConfigV1), nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after initial load")
	}
	guide, ok := cfg.Guide("limanour")
	if !ok {
		t.Fatal("guide limanour missing from initial config")
	}
	if guide.Name != "Limanour" {
		t.Errorf("guide name = %q, want Limanour", guide.Name)
	}
}

func TestWatcherRefusesMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("NewWatcher succeeded on a missing file")
	}
}

func TestWatcherAppliesGuideEdit(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, guideConfigV1)
	rec := newReloadRecorder()
	w := startWatcher(t, path, rec.apply)

	if err := os.WriteFile(path, []byte(guideConfigV2), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("edit was not picked up within 2s")
	}

	old, updated := rec.last()
	oldGuide, _ := old.Guide("limanour")
	newGuide, _ := updated.Guide("limanour")
	if oldGuide.Instructions == newGuide.Instructions {
		t.Error("callback old and updated guides carry the same instructions")
	}
	if newGuide.Instructions != "Speak slowly and use simple words." {
		t.Errorf("updated instructions = %q", newGuide.Instructions)
	}

	cur, _ := w.Current().Guide("limanour")
	if cur.Instructions != newGuide.Instructions {
		t.Errorf("Current() lags the reload: %q", cur.Instructions)
	}
}

func TestWatcherKeepsConfigAcrossBrokenEdit(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, guideConfigV1)
	rec := newReloadRecorder()
	w := startWatcher(t, path, rec.apply)

	if err := os.WriteFile(path, []byte(brokenConfig), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("callback fired %d times for a broken edit", n)
	}
	if _, ok := w.Current().Guide("limanour"); !ok {
		t.Error("Current() lost the last good config")
	}
}

func TestWatcherIgnoresTouch(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, guideConfigV1)
	rec := newReloadRecorder()
	startWatcher(t, path, rec.apply)

	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("touch config: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("callback fired %d times for a touch with identical content", n)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	t.Parallel()
	w := startWatcher(t, writeConfig(t, guideConfigV1), nil)
	w.Stop()
	w.Stop()
}
