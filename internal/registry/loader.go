package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llamad/internal/common/fsutil"
	"llamad/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a registry from
// filenames. ID is the full filename (including extension); Path is the
// absolute file path. Other metadata is empty.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{ID: name, Name: name, Path: filepath.Join(abs, name)})
	}
	return models, nil
}

// Resolve maps a name-or-path to an on-disk path. Absolute and relative paths
// that exist are returned as-is (after ~ expansion); bare names are looked up
// under modelsDir. The result may be a file or a directory.
func Resolve(nameOrPath, modelsDir string) (string, error) {
	p, err := fsutil.ExpandHome(nameOrPath)
	if err != nil {
		return "", err
	}
	if fsutil.PathExists(p) {
		return p, nil
	}
	if modelsDir != "" {
		base, err := fsutil.ExpandHome(modelsDir)
		if err != nil {
			return "", err
		}
		candidate := filepath.Join(base, nameOrPath)
		if fsutil.PathExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("model not found: %s", nameOrPath)
}

// FirstGGUF returns the lexicographically first *.gguf file in dir. Sorted
// order keeps multi-part model directories deterministic.
func FirstGGUF(dir string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.gguf"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}
