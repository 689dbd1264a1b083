package llamaserver

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"llamad/internal/common/fsutil"
	"llamad/pkg/types"
)

// binaryNames are the well-known names the server binary ships under.
var binaryNames = []string{"llama-server", "llama-cpp-server"}

// buildDirs are conventional locations of a source-built llama.cpp, checked
// after PATH.
var buildDirs = []string{
	"llama.cpp/build/bin",
	"~/llama.cpp/build/bin",
}

// DiscoverBinary resolves the llama-server binary: an explicitly configured
// path wins, otherwise PATH is searched. A miss is a startup failure with
// installation guidance.
func DiscoverBinary(configured string) (string, error) {
	if configured != "" {
		p, err := fsutil.ExpandHome(configured)
		if err != nil {
			return "", &startupError{reason: "resolve binary path", err: err}
		}
		if fsutil.IsFile(p) {
			return p, nil
		}
		return "", &startupError{reason: fmt.Sprintf("llama-server binary not found at %s", p)}
	}
	for _, name := range binaryNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	for _, dir := range buildDirs {
		base, err := fsutil.ExpandHome(dir)
		if err != nil {
			continue
		}
		for _, name := range binaryNames {
			if p := filepath.Join(base, name); fsutil.IsFile(p) {
				return p, nil
			}
		}
	}
	return "", &startupError{reason: "llama-server binary not found, install llama.cpp and put llama-server on PATH or set the binary path explicitly"}
}

// Preflight reports whether the external dependencies needed to start a
// handle are present. It does not mutate state and is safe to call anytime.
func Preflight(binPath, modelPath string) types.PreflightReport {
	r := types.PreflightReport{ModelPath: modelPath}

	bin, err := DiscoverBinary(binPath)
	if err != nil {
		r.Error = err.Error()
	} else {
		r.BinaryFound = true
		r.BinaryPath = bin
	}

	if fsutil.IsFile(modelPath) {
		r.ModelFound = true
	} else if r.Error == "" {
		r.Error = "model file not found: " + modelPath
	}
	return r
}
