// Package llamaserver manages the lifecycle of a local llama.cpp llama-server
// subprocess and exposes the HTTP client facade callers generate with. It is
// structured into small files by concern:
//
//   - server.go: the Server handle (construction, capability discovery, Close).
//   - config.go: LaunchConfig and package defaults.
//   - args.go: deterministic argv construction from config + hardware probe.
//   - port.go: ephemeral port allocation.
//   - supervisor.go: child-process spawn, readiness polling, termination.
//   - stderr.go: progress rendering / noise filtering of the child's stderr.
//   - client.go: tokenize/detokenize and capability probes over HTTP.
//   - payload.go: GenerationConfig to wire sampling-parameter translation.
//   - stream.go: the streaming completion iterator.
//   - logits.go: the non-streaming logits/probability query.
//   - errors.go: error taxonomy and helpers (IsStartupFailure, ...).
//   - events.go: lifecycle event publishing.
//   - metrics.go: Prometheus collectors.
//   - discover.go: llama-server binary discovery and preflight checks.
//
// One caller drives a Server's public API sequentially; the child process and
// the stderr filter goroutine run concurrently with it. Close is idempotent
// and must be deferred by the owner.
package llamaserver
