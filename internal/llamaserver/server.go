package llamaserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llamad/internal/hardware"
	"llamad/pkg/types"
)

// bosSentinel marks "BOS token unknown". Kept distinct from "" so prefix
// checks never match accidentally on an empty string.
const bosSentinel = "~~"

// imageTokenCostEstimate is the assumed prompt-token cost per attached image.
// A conservative approximation, not an exact count; the real cost depends on
// the projector.
const imageTokenCostEstimate = 600

// Options configures a Server handle.
type Options struct {
	// BinPath is the llama-server binary. Empty means discover via PATH.
	BinPath string
	// ModelPath is the GGUF model file to serve. Required.
	ModelPath string
	// Launch holds the process-start settings.
	Launch LaunchConfig
	// Hardware is the probe result feeding the GPU flag guard.
	Hardware hardware.Info
	// StartupTimeout bounds waiting for the health check; 0 means 120s.
	StartupTimeout time.Duration
	// Logger for lifecycle and warning output. Optional.
	Logger zerolog.Logger
	// Events receives lifecycle events. Optional.
	Events EventPublisher
	// StderrSink receives the filtered child stderr. Defaults to os.Stderr.
	StderrSink io.Writer
	// Verbose dumps the built argv and generation payloads at debug level.
	Verbose bool
}

// Server owns one llama-server child process and the HTTP session to it.
// One caller drives its API sequentially; Close is idempotent.
type Server struct {
	binPath   string
	modelPath string
	launch    LaunchConfig
	verbose   bool
	log       zerolog.Logger

	port   int
	client *client
	sv     *supervisor

	// Populated exactly once, after the health check succeeds.
	vocabularySize int
	bosToken       string

	lastPromptTokens atomic.Int64
	readyAt          time.Time
	closeOnce        sync.Once
}

// New spawns the server and blocks until it is healthy: allocate a port,
// build argv, launch the child, poll /health, then discover vocabulary size
// and BOS token. On any failure everything already acquired is torn down
// before the error is returned; no partially-usable handle escapes.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.ModelPath == "" {
		return nil, &startupError{reason: "model path is empty"}
	}
	events := opts.Events
	if events == nil {
		events = noopPublisher{}
	}
	sink := opts.StderrSink
	if sink == nil {
		sink = os.Stderr
	}

	binPath, err := DiscoverBinary(opts.BinPath)
	if err != nil {
		return nil, err
	}

	port, err := pickFreePort()
	if err != nil {
		return nil, &startupError{reason: "no free port", err: err}
	}

	s := &Server{
		binPath:   binPath,
		modelPath: opts.ModelPath,
		launch:    opts.Launch.withDefaults(),
		verbose:   opts.Verbose,
		log:       opts.Logger,
		port:      port,
		client:    newClient(port),
		sv:        newSupervisor(opts.ModelPath, opts.Logger, events),
		bosToken:  bosSentinel,
	}

	argv := buildServerArgs(binPath, opts.ModelPath, port, s.launch, opts.Hardware, opts.Logger)
	s.log.Info().
		Bool("gpu", opts.Hardware.HasGPU).
		Int("gpu_layers", s.launch.GPULayers).
		Int("ctx", s.launch.CtxSize).
		Str("cache", s.launch.CacheType).
		Msg("llama.cpp launch")
	if s.verbose {
		s.log.Debug().Strs("args", argv[1:]).Msg("llama-server command-line flags")
	}

	if err := s.sv.launch(argv, newStderrFilter(sink)); err != nil {
		return nil, err
	}
	if err := s.sv.waitReady(ctx, s.client.http, s.client.baseURL+"/health", opts.StartupTimeout); err != nil {
		// waitReady already stopped the child on timeout; stop again is a no-op.
		s.sv.stop()
		return nil, err
	}

	// Capability discovery is only valid after the health check passes.
	if n, ok := s.client.fetchVocabularySize(ctx); ok {
		s.vocabularySize = n
	}
	if bos, ok := s.client.fetchBOSToken(ctx); ok {
		s.bosToken = bos
	}

	s.readyAt = time.Now()
	s.log.Info().Int("port", port).Msg("llama.cpp server ready")
	return s, nil
}

// Close stops the child process and releases the HTTP session. Safe to call
// more than once; only the first call does work.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.sv.stop()
		s.client.http.CloseIdleConnections()
	})
	return nil
}

// Port returns the TCP port the child is bound to.
func (s *Server) Port() int { return s.port }

// PID returns the child process id, or 0 when not running.
func (s *Server) PID() int { return s.sv.pid() }

// VocabularySize returns the discovered vocabulary size, or 0 when the server
// version does not report one.
func (s *Server) VocabularySize() int { return s.vocabularySize }

// BOSToken returns the discovered BOS token, or the "~~" sentinel.
func (s *Server) BOSToken() string { return s.bosToken }

// State returns the lifecycle state of the supervised process.
func (s *Server) State() State { return s.sv.State() }

// Ready reports whether the handle can serve requests.
func (s *Server) Ready() bool { return s.sv.State() == StateReady }

// Status snapshots the handle for the diagnostics endpoint.
func (s *Server) Status() types.StatusResponse {
	st := types.StatusResponse{
		State:            string(s.sv.State()),
		ModelPath:        s.modelPath,
		Port:             s.port,
		PID:              s.sv.pid(),
		VocabularySize:   s.vocabularySize,
		BOSToken:         s.bosToken,
		LastPromptTokens: int(s.lastPromptTokens.Load()),
	}
	if !s.readyAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(s.readyAt).Seconds())
	}
	if st.State == string(StateFailed) {
		if err := s.sv.exitError(); err != nil {
			st.Error = err.Error()
		}
	}
	return st
}

// Encode tokenizes text. The BOS flag is suppressed when the text already
// starts with the known BOS token, avoiding a double BOS.
func (s *Server) Encode(ctx context.Context, text string, addBOS bool) ([]int, error) {
	if s.bosToken != "" && strings.HasPrefix(text, s.bosToken) {
		addBOS = false
	}
	return s.client.tokenize(ctx, text, addBOS)
}

// Decode converts token ids back into text.
func (s *Server) Decode(ctx context.Context, tokens []int) (string, error) {
	return s.client.detokenize(ctx, tokens)
}

// GenerateStream issues a streaming completion. images, when present, switch
// the request to the multimodal prompt form; each image costs an estimated
// 600 prompt tokens. The returned Stream must be driven to completion or
// closed by the caller.
func (s *Server) GenerateStream(ctx context.Context, prompt string, images [][]byte, gc *types.GenerationConfig) (*Stream, error) {
	payload, err := preparePayload(gc)
	if err != nil {
		return nil, err
	}

	var promptTokens int
	if len(images) > 0 {
		encoded := make([]string, len(images))
		for i, img := range images {
			encoded[i] = base64.StdEncoding.EncodeToString(img)
		}
		payload["prompt"] = map[string]any{
			"prompt_string":   prompt,
			"multimodal_data": encoded,
		}
		textTokens, err := s.Encode(ctx, prompt, gc.AddBOSToken)
		if err != nil {
			return nil, err
		}
		promptTokens = len(textTokens) + len(images)*imageTokenCostEstimate
	} else {
		tokens, err := s.Encode(ctx, prompt, gc.AddBOSToken)
		if err != nil {
			return nil, err
		}
		payload["prompt"] = tokens
		promptTokens = len(tokens)
	}
	s.lastPromptTokens.Store(int64(promptTokens))

	maxNewTokens := gc.MaxNewTokens
	if gc.AutoMaxNewTokens {
		maxNewTokens = gc.TruncationLength - promptTokens
	}
	payload["n_predict"] = maxNewTokens
	payload["stream"] = true
	payload["cache_prompt"] = true

	genID := uuid.NewString()
	log := s.log.With().Str("gen_id", genID).Logger()
	if s.verbose {
		log.Debug().Any("params", withoutPrompt(payload)).Msg("generate params")
	}

	resp, err := s.postStream(ctx, "/completion", payload)
	if err != nil {
		return nil, err
	}
	generationsTotal.Inc()
	return newStream(ctx, resp, log), nil
}

// Generate drains the streaming sequence and returns the final cumulative
// text.
func (s *Server) Generate(ctx context.Context, prompt string, gc *types.GenerationConfig) (string, error) {
	stream, err := s.GenerateStream(ctx, prompt, nil, gc)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	for stream.Next() {
	}
	return stream.Text(), stream.Err()
}

// postStream issues the completion POST and maps error responses. A 400 whose
// error type is the server's context-size rejection surfaces as a distinct,
// user-actionable condition.
func (s *Server) postStream(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusBadRequest {
		detail := drainBody(resp.Body)
		resp.Body.Close()
		var errBody struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal([]byte(detail), &errBody) == nil && errBody.Error.Type == "exceed_context_size_error" {
			s.log.Error().Msg("the request exceeds the available context size, try increasing it")
			return nil, &contextExceededError{detail: errBody.Error.Message}
		}
		return nil, &httpStatusError{status: resp.StatusCode, body: detail}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := drainBody(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{status: resp.StatusCode, body: detail}
	}
	return resp, nil
}

// withoutPrompt copies the payload minus the prompt field for debug logging.
func withoutPrompt(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "prompt" {
			continue
		}
		out[k] = v
	}
	return out
}
