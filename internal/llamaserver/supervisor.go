package llamaserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of the supervised child process.
type State string

const (
	StateNotStarted     State = "not_started"
	StateLaunching      State = "launching"
	StateHealthChecking State = "health_checking"
	StateReady          State = "ready"
	StateStopping       State = "stopping"
	StateStopped        State = "stopped"
	StateFailed         State = "failed"
)

// supervisor owns the llama-server child process: it is the only component
// allowed to spawn or terminate it.
type supervisor struct {
	log    zerolog.Logger
	events EventPublisher
	model  string

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd

	// exited is closed by the wait goroutine once the child is reaped;
	// exitErr holds the result of Wait and is readable after exited closes.
	exited  chan struct{}
	exitErr error
}

func newSupervisor(model string, log zerolog.Logger, events EventPublisher) *supervisor {
	return &supervisor{
		log:    log,
		events: events,
		model:  model,
		state:  StateNotStarted,
	}
}

func (sv *supervisor) State() State {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.state
}

func (sv *supervisor) setState(s State) {
	sv.mu.Lock()
	sv.state = s
	sv.mu.Unlock()
}

// exitError returns the child's Wait result once it has been reaped.
func (sv *supervisor) exitError() error {
	sv.mu.Lock()
	exited := sv.exited
	sv.mu.Unlock()
	if exited == nil {
		return nil
	}
	select {
	case <-exited:
		return sv.exitErr
	default:
		return nil
	}
}

func (sv *supervisor) pid() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.cmd == nil || sv.cmd.Process == nil {
		return 0
	}
	return sv.cmd.Process.Pid
}

// launch spawns the child with stderr piped into the filter and stdout
// discarded. The filter goroutine starts before any health polling so
// diagnostic output is never held up by a full pipe buffer.
func (sv *supervisor) launch(argv []string, filter *stderrFilter) error {
	sv.setState(StateLaunching)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = childEnv(argv[0])

	// A manual pipe keeps Wait safe to call while the filter goroutine is
	// still draining (exec.Cmd's own StderrPipe forbids that ordering).
	pr, pw, err := os.Pipe()
	if err != nil {
		sv.setState(StateFailed)
		return &startupError{reason: "stderr pipe", err: err}
	}
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		sv.setState(StateFailed)
		spawnFailuresTotal.WithLabelValues("spawn").Inc()
		return &startupError{reason: "failed to start llama-server at " + argv[0], err: err}
	}
	// Parent's write end must close so the filter sees EOF when the child
	// exits.
	pw.Close()

	sv.mu.Lock()
	sv.cmd = cmd
	sv.exited = make(chan struct{})
	sv.mu.Unlock()

	go func() {
		defer pr.Close()
		filter.run(pr)
	}()
	go func() {
		sv.exitErr = cmd.Wait()
		close(sv.exited)
	}()

	spawnsTotal.Inc()
	sv.log.Info().Int("pid", cmd.Process.Pid).Str("model", sv.model).Msg("llama-server spawned")
	sv.events.Publish(Event{Name: EventSpawnStart, Model: sv.model, Fields: map[string]any{"pid": cmd.Process.Pid}})
	return nil
}

// waitReady polls the health endpoint at a fixed one-second interval until
// the server answers 200, the child exits, or the timeout elapses. A dead
// child fails immediately; a timeout performs a best-effort stop of the
// presumed-hung process before reporting.
func (sv *supervisor) waitReady(ctx context.Context, httpClient *http.Client, healthURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	sv.setState(StateHealthChecking)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probe := func() error {
		// Never keep polling a dead process.
		select {
		case <-sv.exited:
			return backoff.Permanent(sv.earlyExitError())
		default:
		}

		reqCtx, reqCancel := context.WithTimeout(ctx, time.Second)
		defer reqCancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(time.Second), ctx)
	if err := backoff.Retry(probe, policy); err != nil {
		sv.setState(StateFailed)
		if IsStartupFailure(err) {
			return err
		}
		// Timed out: the child is presumed hung. Stop it, then report.
		elapsed := time.Since(start).Round(time.Second)
		sv.events.Publish(Event{Name: EventSpawnTimeout, Model: sv.model, Fields: map[string]any{"pid": sv.pid()}})
		spawnFailuresTotal.WithLabelValues("timeout").Inc()
		sv.stop()
		return &startupError{
			reason: fmt.Sprintf("server not healthy after %s (the model may be taking too long to load)", elapsed),
			err:    err,
		}
	}

	sv.setState(StateReady)
	startupDuration.Observe(time.Since(start).Seconds())
	sv.events.Publish(Event{Name: EventSpawnReady, Model: sv.model, Fields: map[string]any{"pid": sv.pid()}})
	return nil
}

// earlyExitError captures the exit code of a child that died before becoming
// healthy.
func (sv *supervisor) earlyExitError() error {
	spawnFailuresTotal.WithLabelValues("early_exit").Inc()
	exitCode := -1
	if ee, ok := sv.exitErr.(*exec.ExitError); ok {
		exitCode = ee.ExitCode()
	} else if sv.exitErr == nil {
		exitCode = 0
	}
	sv.events.Publish(Event{Name: EventSpawnExit, Model: sv.model, Fields: map[string]any{"exit_code": exitCode}})
	return &startupError{
		reason: fmt.Sprintf("llama-server exited with code %d before becoming healthy, check the server log for errors", exitCode),
		err:    sv.exitErr,
	}
}

// stop terminates the child: graceful signal first, forced kill after the
// grace period. The process reference is cleared afterward so repeated calls
// are no-ops; only the first caller does real work.
func (sv *supervisor) stop() {
	sv.mu.Lock()
	cmd := sv.cmd
	exited := sv.exited
	sv.cmd = nil
	if cmd != nil {
		sv.state = StateStopping
	}
	sv.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(stopGracePeriod):
		_ = cmd.Process.Kill()
		<-exited
	}

	sv.setState(StateStopped)
	sv.events.Publish(Event{Name: EventSpawnStop, Model: sv.model, Fields: map[string]any{}})
	sv.log.Info().Str("model", sv.model).Msg("llama-server stopped")
}

// childEnv patches the environment for the child: on POSIX systems the
// binary's own directory leads the dynamic-library search path, since
// llama-server often ships with co-located shared libraries.
func childEnv(binPath string) []string {
	env := os.Environ()
	if runtime.GOOS == "windows" {
		return env
	}
	serverDir := filepath.Dir(binPath)
	patched := env[:0:0]
	found := false
	for _, kv := range env {
		if after, ok := strings.CutPrefix(kv, "LD_LIBRARY_PATH="); ok {
			found = true
			if after == "" {
				patched = append(patched, "LD_LIBRARY_PATH="+serverDir)
			} else {
				patched = append(patched, "LD_LIBRARY_PATH="+serverDir+":"+after)
			}
			continue
		}
		patched = append(patched, kv)
	}
	if !found {
		patched = append(patched, "LD_LIBRARY_PATH="+serverDir)
	}
	return patched
}

// drainBody is a tiny helper so error paths can include a bounded response
// excerpt.
func drainBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}
