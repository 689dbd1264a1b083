package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDefaultCarriesLaunchAndGeneration(t *testing.T) {
	cfg := Default()
	if cfg.Addr != ":8090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.StartupTimeoutSecs != 120 {
		t.Fatalf("startup timeout = %d", cfg.StartupTimeoutSecs)
	}
	if cfg.Launch.CtxSize != 8192 {
		t.Fatalf("launch ctx size = %d", cfg.Launch.CtxSize)
	}
	if cfg.Generation.Temperature != 0.7 {
		t.Fatalf("generation temperature = %v", cfg.Generation.Temperature)
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeTemp(t, "cfg.yaml", `
addr: ":9999"
model: /models/tiny.gguf
launch:
  ctx_size: 4096
  gpu_layers: 33
generation:
  temperature: 0.2
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Model != "/models/tiny.gguf" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.Launch.CtxSize != 4096 || cfg.Launch.GPULayers != 33 {
		t.Fatalf("launch = %+v", cfg.Launch)
	}
	if cfg.Generation.Temperature != 0.2 {
		t.Fatalf("temperature = %v", cfg.Generation.Temperature)
	}
	// Untouched fields keep their defaults.
	if cfg.Generation.TopK != 20 {
		t.Fatalf("top_k = %d, want default", cfg.Generation.TopK)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"addr":":7070","launch":{"cache_type":"q8_0"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Launch.CacheType != "q8_0" {
		t.Fatalf("cache type = %q", cfg.Launch.CacheType)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeTemp(t, "cfg.toml", "verbose = true\n\n[launch]\nthreads = 8\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Verbose {
		t.Fatal("verbose not set")
	}
	if cfg.Launch.Threads != 8 {
		t.Fatalf("threads = %d", cfg.Launch.Threads)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeTemp(t, "cfg.ini", "addr=:1\n")
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for .ini")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
