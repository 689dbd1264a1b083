package types

// StatusResponse is the payload served by the diagnostics /status endpoint.
type StatusResponse struct {
	// Lifecycle state of the managed server (not_started, launching,
	// health_checking, ready, stopping, stopped, failed).
	State string `json:"state"`
	// Model file currently served.
	ModelPath string `json:"model_path,omitempty"`
	// TCP port the child process is bound to.
	Port int `json:"port,omitempty"`
	// Process ID of the child, when running.
	PID int `json:"pid,omitempty"`
	// Vocabulary size reported by the server; 0 when the server version does
	// not expose it.
	VocabularySize int `json:"vocabulary_size,omitempty"`
	// BOS token string reported by the server; "~~" when unknown.
	BOSToken string `json:"bos_token,omitempty"`
	// Token count of the most recent prompt.
	LastPromptTokens int `json:"last_prompt_tokens"`
	// Uptime in seconds since the handle became ready.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Error detail when State is failed.
	Error string `json:"error,omitempty"`
}

// PreflightReport describes startup checks for external dependencies. It does
// not mutate state and is safe to request at any time.
type PreflightReport struct {
	BinaryFound bool   `json:"binary_found"`
	BinaryPath  string `json:"binary_path,omitempty"`
	ModelFound  bool   `json:"model_found"`
	ModelPath   string `json:"model_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TokenProb pairs a token string with its probability or log-probability as
// returned by the logits query.
type TokenProb struct {
	Token   string  `json:"token"`
	Prob    float64 `json:"prob"`
	Logprob float64 `json:"logprob"`
}
