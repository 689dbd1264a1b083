package llamaserver

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// progressRe matches llama-server's prompt-processing progress lines and
// captures the completion fraction.
var progressRe = regexp.MustCompile(`slot update_slots: id.*progress = (\d+\.\d+)`)

// stderrFilter consumes the child's raw stderr, rendering progress lines as a
// single overwriting terminal line and suppressing known noise. Presentation
// only: nothing downstream parses this output.
type stderrFilter struct {
	out             io.Writer
	lastWasProgress bool
}

func newStderrFilter(out io.Writer) *stderrFilter {
	return &stderrFilter{out: out}
}

// run reads until EOF. The stream is raw bytes: chunks can split lines or
// multi-byte sequences arbitrarily, so lines are assembled here rather than
// with a text scanner with its own size limits.
func (f *stderrFilter) run(r io.Reader) {
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := strings.TrimRight(string(pending[:idx]), "\r")
				pending = pending[idx+1:]
				if line != "" {
					f.handleLine(line)
				}
			}
		}
		if err != nil {
			// Flush any unterminated tail before returning.
			if tail := strings.TrimRight(string(pending), "\r"); tail != "" {
				f.handleLine(tail)
			}
			return
		}
	}
}

func (f *stderrFilter) handleLine(line string) {
	if m := progressRe.FindStringSubmatch(line); m != nil {
		progress, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			f.printProgress(line, progress)
			return
		}
	}

	// Known-noise lines.
	if strings.HasPrefix(line, "srv ") || strings.HasPrefix(line, "slot ") ||
		strings.Contains(line, "log_server_r: request: GET /health") {
		return
	}

	// Pass-through: finish an in-progress overwrite line first so the two
	// never collide.
	if f.lastWasProgress {
		fmt.Fprintln(f.out)
	}
	fmt.Fprintln(f.out, line)
	f.lastWasProgress = false
}

// printProgress overwrites the same terminal line with carriage returns while
// the fraction is below 1.0, and commits it with a newline at completion.
func (f *stderrFilter) printProgress(line string, progress float64) {
	display := line
	if idx := strings.Index(line, "prompt processing"); idx != -1 {
		display = line[idx:]
	}
	if progress < 1.0 {
		fmt.Fprintf(f.out, "%s\r", display)
		f.lastWasProgress = true
	} else {
		fmt.Fprintf(f.out, "%s\n", display)
		f.lastWasProgress = false
	}
}
