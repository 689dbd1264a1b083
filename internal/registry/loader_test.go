package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("gguf"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadDir_FiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.gguf", "b.GGUF", "notes.txt")
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d: %+v", len(models), models)
	}
	for _, m := range models {
		if m.ID == "" || m.Path == "" {
			t.Fatalf("model missing id/path: %+v", m)
		}
		if !filepath.IsAbs(m.Path) {
			t.Fatalf("expected absolute path, got %q", m.Path)
		}
	}
}

func TestLoadDir_MissingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestResolve_DirectPath(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "m.gguf")
	p := filepath.Join(dir, "m.gguf")
	got, err := Resolve(p, "")
	if err != nil || got != p {
		t.Fatalf("Resolve: got=%q err=%v", got, err)
	}
}

func TestResolve_UnderModelsDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "m.gguf")
	got, err := Resolve("m.gguf", dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(dir, "m.gguf") {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestResolve_NotFound(t *testing.T) {
	if _, err := Resolve("missing.gguf", t.TempDir()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFirstGGUF_SortedOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b-00002.gguf", "a-00001.gguf")
	got, ok := FirstGGUF(dir)
	if !ok {
		t.Fatal("expected a match")
	}
	if filepath.Base(got) != "a-00001.gguf" {
		t.Fatalf("expected first sorted file, got %q", got)
	}
}

func TestFirstGGUF_Empty(t *testing.T) {
	if _, ok := FirstGGUF(t.TempDir()); ok {
		t.Fatal("expected no match in empty dir")
	}
}
