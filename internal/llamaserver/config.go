package llamaserver

import "time"

// Defaults applied when corresponding LaunchConfig fields are unset.
const (
	defaultCtxSize        = 8192
	defaultBatchSize      = 2048
	defaultUBatchSize     = 512
	defaultCacheType      = "fp16"
	defaultMMProjDir      = "user_data/mmproj"
	defaultStartupTimeout = 120 * time.Second
	stopGracePeriod       = 5 * time.Second
)

// validCacheTypes is the fixed set of KV-cache quantization types accepted by
// llama-server. Anything else falls back to fp16 with no flag emitted.
var validCacheTypes = map[string]struct{}{
	"fp16": {},
	"q8_0": {},
	"q4_0": {},
}

// LaunchConfig is the hardware- and model-derived subset of settings used
// only at process-start time. It is constructed once per handle and immutable
// afterward.
type LaunchConfig struct {
	CtxSize    int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	BatchSize  int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	UBatchSize int `json:"ubatch_size" yaml:"ubatch_size" toml:"ubatch_size"`

	// GPULayers is the requested offload count. It is forced to 0 when no GPU
	// is detected, regardless of the configured value.
	GPULayers   int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	TensorSplit string `json:"tensor_split,omitempty" yaml:"tensor_split" toml:"tensor_split"`
	RowSplit    bool   `json:"row_split" yaml:"row_split" toml:"row_split"`

	// Threads <= 0 means "let llama-server choose"; the flag is not emitted.
	Threads      int `json:"threads" yaml:"threads" toml:"threads"`
	ThreadsBatch int `json:"threads_batch" yaml:"threads_batch" toml:"threads_batch"`

	CPUMoE      bool `json:"cpu_moe" yaml:"cpu_moe" toml:"cpu_moe"`
	NoMmap      bool `json:"no_mmap" yaml:"no_mmap" toml:"no_mmap"`
	MLock       bool `json:"mlock" yaml:"mlock" toml:"mlock"`
	NUMA        bool `json:"numa" yaml:"numa" toml:"numa"`
	NoKVOffload bool `json:"no_kv_offload" yaml:"no_kv_offload" toml:"no_kv_offload"`

	CacheType string `json:"cache_type" yaml:"cache_type" toml:"cache_type"`

	// CompressPosEmb != 1 emits --rope-freq-scale 1/CompressPosEmb.
	CompressPosEmb float64 `json:"compress_pos_emb" yaml:"compress_pos_emb" toml:"compress_pos_emb"`
	RopeFreqBase   float64 `json:"rope_freq_base" yaml:"rope_freq_base" toml:"rope_freq_base"`

	// MMProj is an absolute path or a filename under MMProjDir. A missing
	// file skips the flag; multimodal support is optional.
	MMProj    string `json:"mmproj,omitempty" yaml:"mmproj" toml:"mmproj"`
	MMProjDir string `json:"mmproj_dir,omitempty" yaml:"mmproj_dir" toml:"mmproj_dir"`

	// ModelDraft enables speculative decoding: a draft model file, or a
	// directory whose first *.gguf (sorted) is used.
	ModelDraft     string `json:"model_draft,omitempty" yaml:"model_draft" toml:"model_draft"`
	DraftMax       int    `json:"draft_max" yaml:"draft_max" toml:"draft_max"`
	GPULayersDraft int    `json:"gpu_layers_draft" yaml:"gpu_layers_draft" toml:"gpu_layers_draft"`
	DeviceDraft    string `json:"device_draft,omitempty" yaml:"device_draft" toml:"device_draft"`
	CtxSizeDraft   int    `json:"ctx_size_draft" yaml:"ctx_size_draft" toml:"ctx_size_draft"`

	StreamingLLM bool `json:"streaming_llm" yaml:"streaming_llm" toml:"streaming_llm"`

	// ExtraFlags is a comma-separated list of key=value or bare-key tokens
	// passed through to llama-server unvalidated.
	ExtraFlags string `json:"extra_flags,omitempty" yaml:"extra_flags" toml:"extra_flags"`
}

// DefaultLaunchConfig returns a LaunchConfig with package defaults applied.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		CtxSize:        defaultCtxSize,
		BatchSize:      defaultBatchSize,
		UBatchSize:     defaultUBatchSize,
		CacheType:      defaultCacheType,
		CompressPosEmb: 1,
		MMProjDir:      defaultMMProjDir,
	}
}

// withDefaults fills unset required fields so argv construction never emits
// zero sizes.
func (lc LaunchConfig) withDefaults() LaunchConfig {
	if lc.CtxSize <= 0 {
		lc.CtxSize = defaultCtxSize
	}
	if lc.BatchSize <= 0 {
		lc.BatchSize = defaultBatchSize
	}
	if lc.UBatchSize <= 0 {
		lc.UBatchSize = defaultUBatchSize
	}
	if lc.CompressPosEmb == 0 {
		lc.CompressPosEmb = 1
	}
	if lc.MMProjDir == "" {
		lc.MMProjDir = defaultMMProjDir
	}
	return lc
}
