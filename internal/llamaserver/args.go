package llamaserver

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"llamad/internal/common/fsutil"
	"llamad/internal/hardware"
	"llamad/internal/registry"
)

// buildServerArgs assembles the llama-server command line. The result is the
// full argv, binary path first. Construction is deterministic and performs no
// I/O beyond stat'ing the optional mmproj and draft-model paths.
//
// GPU-only flags (--gpu-layers, --flash-attn, --tensor-split, --split-mode
// row) are emitted only when a GPU was detected and the offload count is
// positive.
func buildServerArgs(binPath, modelPath string, port int, lc LaunchConfig, hw hardware.Info, log zerolog.Logger) []string {
	lc = lc.withDefaults()

	gpuLayers := lc.GPULayers
	if !hw.HasGPU {
		log.Warn().Msg("no GPU detected, running llama.cpp in CPU-only mode")
		if lc.GPULayers > 0 {
			log.Warn().Int("requested", lc.GPULayers).Msg("overriding gpu_layers to 0 (CPU mode)")
			gpuLayers = 0
		}
	}

	args := []string{
		binPath,
		"--model", modelPath,
		"--ctx-size", strconv.Itoa(lc.CtxSize),
		"--batch-size", strconv.Itoa(lc.BatchSize),
		"--ubatch-size", strconv.Itoa(lc.UBatchSize),
		"--port", strconv.Itoa(port),
		"--no-webui",
	}

	if hw.HasGPU && gpuLayers > 0 {
		args = append(args, "--gpu-layers", strconv.Itoa(gpuLayers))
		// Flash attention only works on GPU. An unsupported binary rejects
		// the flag itself; no pre-validation here.
		args = append(args, "--flash-attn")
	}

	if lc.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(lc.Threads))
	}
	if lc.ThreadsBatch > 0 {
		args = append(args, "--threads-batch", strconv.Itoa(lc.ThreadsBatch))
	}
	if lc.CPUMoE {
		args = append(args, "--cpu-moe")
	}
	if lc.NoMmap {
		args = append(args, "--no-mmap")
	}
	if lc.MLock {
		args = append(args, "--mlock")
	}

	if hw.HasGPU && gpuLayers > 0 && lc.TensorSplit != "" {
		args = append(args, "--tensor-split", lc.TensorSplit)
	}
	if lc.NUMA {
		args = append(args, "--numa", "distribute")
	}
	if lc.NoKVOffload {
		args = append(args, "--no-kv-offload")
	}
	if hw.HasGPU && gpuLayers > 0 && lc.RowSplit {
		args = append(args, "--split-mode", "row")
	}

	// Unknown cache types silently fall back to fp16 (no flag emitted).
	if _, ok := validCacheTypes[lc.CacheType]; ok {
		args = append(args,
			"--cache-type-k", lc.CacheType,
			"--cache-type-v", lc.CacheType,
		)
	}

	if lc.CompressPosEmb != 1 {
		args = append(args, "--rope-freq-scale", formatFloat(1.0/lc.CompressPosEmb))
	}
	if lc.RopeFreqBase > 0 {
		args = append(args, "--rope-freq-base", formatFloat(lc.RopeFreqBase))
	}

	if mmproj, ok := resolveMMProj(lc.MMProj, lc.MMProjDir); ok {
		args = append(args, "--mmproj", mmproj)
	}

	if lc.ModelDraft != "" {
		if draft, ok := resolveDraftModel(lc.ModelDraft); ok {
			args = append(args, "--model-draft", draft)
			if lc.DraftMax > 0 {
				args = append(args, "--draft-max", strconv.Itoa(lc.DraftMax))
			}
			if lc.GPULayersDraft > 0 {
				args = append(args, "--gpu-layers-draft", strconv.Itoa(lc.GPULayersDraft))
			}
			if lc.DeviceDraft != "" {
				args = append(args, "--device-draft", lc.DeviceDraft)
			}
			if lc.CtxSizeDraft > 0 {
				args = append(args, "--ctx-size-draft", strconv.Itoa(lc.CtxSizeDraft))
			}
		} else {
			log.Warn().Str("path", lc.ModelDraft).Msg("no GGUF files found for draft model, skipping speculative decoding")
		}
	}

	if lc.StreamingLLM {
		args = append(args, "--cache-reuse", "1", "--swa-full")
	}

	args = append(args, parseExtraFlags(lc.ExtraFlags)...)
	return args
}

// resolveMMProj locates the multimodal projector: the path as given, or
// relative to the conventional mmproj directory. A missing file is skipped,
// not an error; multimodal is optional.
func resolveMMProj(mmproj, dir string) (string, bool) {
	if mmproj == "" {
		return "", false
	}
	if fsutil.IsFile(mmproj) {
		return mmproj, true
	}
	candidate := filepath.Join(dir, mmproj)
	if fsutil.IsFile(candidate) {
		return candidate, true
	}
	return "", false
}

// resolveDraftModel accepts either a GGUF file or a directory containing one;
// directories resolve to the first *.gguf in sorted order.
func resolveDraftModel(path string) (string, bool) {
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return "", false
	}
	if fsutil.IsFile(expanded) {
		return expanded, true
	}
	if fsutil.IsDir(expanded) {
		return registry.FirstGGUF(expanded)
	}
	return "", false
}

// parseExtraFlags converts a comma-separated "key=value" / bare-key string
// into flag arguments. Short names (<= 3 chars) get a single dash. Tokens are
// not validated; llama-server rejects what it does not know.
func parseExtraFlags(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	// Strip one layer of surrounding quotes.
	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	var args []string
	for _, item := range strings.Split(s, ",") {
		if item == "" {
			continue
		}
		flag, value, hasValue := strings.Cut(item, "=")
		if hasValue {
			args = append(args, dashed(flag), value)
		} else {
			args = append(args, dashed(item))
		}
	}
	return args
}

func dashed(flag string) string {
	if len(flag) <= 3 {
		return "-" + flag
	}
	return "--" + flag
}

// formatFloat renders launch-flag floats without exponent notation.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
