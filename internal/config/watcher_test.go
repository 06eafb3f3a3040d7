package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const watcherYAMLv1 = `
providers:
  llm:
    name: openai
    model: gpt-4o-mini
`

const watcherYAMLv2 = `
providers:
  llm:
    name: openai
    model: gpt-4o
`

func writeConfigFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Filesystem mtime granularity can swallow rapid rewrites; set it
	// explicitly so the watcher's mtime fast path sees a change.
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Minute)
	writeConfigFile(t, path, watcherYAMLv1, base)

	var mu sync.Mutex
	var gotOld, gotNew *Config
	w, err := NewWatcher(path, func(old, new *Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Providers.LLM.Model; got != "gpt-4o-mini" {
		t.Fatalf("initial model = %q", got)
	}

	writeConfigFile(t, path, watcherYAMLv2, base.Add(time.Second))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if w.Current().Providers.LLM.Model == "gpt-4o" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never picked up the change")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld == nil || gotNew == nil {
		t.Fatal("onChange not called")
	}
	if gotOld.Providers.LLM.Model != "gpt-4o-mini" || gotNew.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("onChange old=%q new=%q", gotOld.Providers.LLM.Model, gotNew.Providers.LLM.Model)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Minute)
	writeConfigFile(t, path, watcherYAMLv1, base)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// A half-saved or broken file must not replace the running config.
	writeConfigFile(t, path, "providers: [broken", base.Add(time.Second))

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Providers.LLM.Model; got != "gpt-4o-mini" {
		t.Errorf("model = %q, want old config retained", got)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond)); err == nil {
		t.Error("NewWatcher succeeded on a missing file")
	}
}
