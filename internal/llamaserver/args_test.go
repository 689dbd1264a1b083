package llamaserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"llamad/internal/hardware"
)

var (
	cpuOnly = hardware.Info{HasGPU: false}
	withGPU = hardware.Info{HasGPU: true, GPUName: "Test GPU", VRAMMB: 24576}
)

func buildArgs(t *testing.T, lc LaunchConfig, hw hardware.Info) []string {
	t.Helper()
	return buildServerArgs("/opt/llama/llama-server", "/models/tiny.gguf", 8123, lc, hw, zerolog.Nop())
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func flagValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestArgsBaseFlags(t *testing.T) {
	args := buildArgs(t, DefaultLaunchConfig(), cpuOnly)

	if args[0] != "/opt/llama/llama-server" {
		t.Fatalf("argv[0] = %q", args[0])
	}
	if v, _ := flagValue(args, "--model"); v != "/models/tiny.gguf" {
		t.Fatalf("--model = %q", v)
	}
	if v, _ := flagValue(args, "--port"); v != "8123" {
		t.Fatalf("--port = %q", v)
	}
	if v, _ := flagValue(args, "--ctx-size"); v != "8192" {
		t.Fatalf("--ctx-size = %q", v)
	}
	if !hasFlag(args, "--no-webui") {
		t.Fatal("missing --no-webui")
	}
}

func TestArgsCPUModeExcludesGPUFlags(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.GPULayers = 20
	lc.TensorSplit = "60,40"
	lc.RowSplit = true

	args := buildArgs(t, lc, cpuOnly)
	for _, flag := range []string{"--gpu-layers", "--flash-attn", "--tensor-split", "--split-mode"} {
		if hasFlag(args, flag) {
			t.Errorf("CPU mode emitted %s", flag)
		}
	}
}

func TestArgsGPUOffload(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.GPULayers = 20
	lc.CacheType = "q8_0"
	lc.Threads = 0

	args := buildArgs(t, lc, withGPU)
	if v, _ := flagValue(args, "--gpu-layers"); v != "20" {
		t.Fatalf("--gpu-layers = %q", v)
	}
	if !hasFlag(args, "--flash-attn") {
		t.Fatal("missing --flash-attn")
	}
	if v, _ := flagValue(args, "--cache-type-k"); v != "q8_0" {
		t.Fatalf("--cache-type-k = %q", v)
	}
	if v, _ := flagValue(args, "--cache-type-v"); v != "q8_0" {
		t.Fatalf("--cache-type-v = %q", v)
	}
	if hasFlag(args, "--threads") {
		t.Fatal("--threads emitted for threads=0")
	}
	if hasFlag(args, "--mmproj") {
		t.Fatal("--mmproj emitted with no projector configured")
	}
}

func TestArgsGPUZeroLayersExcludesGPUFlags(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.GPULayers = 0
	lc.TensorSplit = "1,1"

	args := buildArgs(t, lc, withGPU)
	for _, flag := range []string{"--gpu-layers", "--flash-attn", "--tensor-split"} {
		if hasFlag(args, flag) {
			t.Errorf("gpu_layers=0 emitted %s", flag)
		}
	}
}

func TestArgsInvalidCacheTypeFallsBack(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.CacheType = "q5_1"

	args := buildArgs(t, lc, cpuOnly)
	if hasFlag(args, "--cache-type-k") || hasFlag(args, "--cache-type-v") {
		t.Fatal("invalid cache type must emit no cache flags")
	}
}

func TestArgsTensorSplitAndRowSplit(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.GPULayers = 10
	lc.TensorSplit = "60,40"
	lc.RowSplit = true

	args := buildArgs(t, lc, withGPU)
	if v, _ := flagValue(args, "--tensor-split"); v != "60,40" {
		t.Fatalf("--tensor-split = %q", v)
	}
	if v, _ := flagValue(args, "--split-mode"); v != "row" {
		t.Fatalf("--split-mode = %q", v)
	}
}

func TestArgsRope(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.CompressPosEmb = 2
	lc.RopeFreqBase = 1000000

	args := buildArgs(t, lc, cpuOnly)
	if v, _ := flagValue(args, "--rope-freq-scale"); v != "0.5" {
		t.Fatalf("--rope-freq-scale = %q", v)
	}
	if v, _ := flagValue(args, "--rope-freq-base"); v != "1000000" {
		t.Fatalf("--rope-freq-base = %q", v)
	}

	lc.CompressPosEmb = 1
	lc.RopeFreqBase = 0
	args = buildArgs(t, lc, cpuOnly)
	if hasFlag(args, "--rope-freq-scale") || hasFlag(args, "--rope-freq-base") {
		t.Fatal("rope flags emitted for default values")
	}
}

func TestArgsOptionalBooleans(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.CPUMoE = true
	lc.NoMmap = true
	lc.MLock = true
	lc.NUMA = true
	lc.NoKVOffload = true
	lc.StreamingLLM = true

	args := buildArgs(t, lc, cpuOnly)
	for _, flag := range []string{"--cpu-moe", "--no-mmap", "--mlock", "--no-kv-offload", "--swa-full"} {
		if !hasFlag(args, flag) {
			t.Errorf("missing %s", flag)
		}
	}
	if v, _ := flagValue(args, "--numa"); v != "distribute" {
		t.Fatalf("--numa = %q", v)
	}
	if v, _ := flagValue(args, "--cache-reuse"); v != "1" {
		t.Fatalf("--cache-reuse = %q", v)
	}
}

func TestArgsMMProjResolvedFromDir(t *testing.T) {
	dir := t.TempDir()
	proj := filepath.Join(dir, "proj.gguf")
	if err := os.WriteFile(proj, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	lc := DefaultLaunchConfig()
	lc.MMProj = "proj.gguf"
	lc.MMProjDir = dir

	args := buildArgs(t, lc, cpuOnly)
	if v, _ := flagValue(args, "--mmproj"); v != proj {
		t.Fatalf("--mmproj = %q, want %q", v, proj)
	}

	lc.MMProj = "absent.gguf"
	args = buildArgs(t, lc, cpuOnly)
	if hasFlag(args, "--mmproj") {
		t.Fatal("--mmproj emitted for missing file")
	}
}

func TestArgsDraftModelFromDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b-draft.gguf", "a-draft.gguf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	lc := DefaultLaunchConfig()
	lc.ModelDraft = dir
	lc.DraftMax = 16
	lc.CtxSizeDraft = 4096

	args := buildArgs(t, lc, cpuOnly)
	want := filepath.Join(dir, "a-draft.gguf")
	if v, _ := flagValue(args, "--model-draft"); v != want {
		t.Fatalf("--model-draft = %q, want first sorted gguf %q", v, want)
	}
	if v, _ := flagValue(args, "--draft-max"); v != "16" {
		t.Fatalf("--draft-max = %q", v)
	}
	if v, _ := flagValue(args, "--ctx-size-draft"); v != "4096" {
		t.Fatalf("--ctx-size-draft = %q", v)
	}
}

func TestArgsDraftModelMissingIsSkipped(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.ModelDraft = filepath.Join(t.TempDir(), "nowhere")
	lc.DraftMax = 16

	args := buildArgs(t, lc, cpuOnly)
	if hasFlag(args, "--model-draft") || hasFlag(args, "--draft-max") {
		t.Fatal("draft flags emitted for unresolvable draft model")
	}
}

func TestParseExtraFlags(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"override-tensor=exps=CPU", []string{"--override-tensor", "exps=CPU"}},
		{"fa", []string{"-fa"}},
		{"'override-tensor=abc,fa'", []string{"--override-tensor", "abc", "-fa"}},
		{`"ot=x"`, []string{"-ot", "x"}},
		{"no-context-shift,nkvo", []string{"--no-context-shift", "--nkvo"}},
	}
	for _, tc := range cases {
		got := parseExtraFlags(tc.in)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("parseExtraFlags(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestArgsDeterministic(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.GPULayers = 8
	lc.ExtraFlags = "fa,override-tensor=x"

	a := buildArgs(t, lc, withGPU)
	b := buildArgs(t, lc, withGPU)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("argv not deterministic:\n%s", diff)
	}
}
