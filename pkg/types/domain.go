package types

// Model represents a discoverable GGUF model file on disk.
type Model struct {
	// Stable identifier for the model (filename including extension).
	ID string `json:"id"`
	// Human-friendly name.
	Name string `json:"name"`
	// Absolute path to the model file on disk.
	Path string `json:"path"`
	// Quantization level or variant string, when known.
	Quant string `json:"quant,omitempty"`
	// Optional family (e.g., llama, mistral, phi).
	Family string `json:"family,omitempty"`
}
