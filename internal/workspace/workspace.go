package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is a per-run scratch directory. Every pipeline run owns exactly
// one and the directory is removed on every exit path.
type Workspace struct {
	root     string
	mu       sync.Mutex
	disposed bool
}

// New creates a unique scratch directory under parent. An empty parent falls
// back to the system temp directory.
func New(parent, runID string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	root, err := os.MkdirTemp(parent, "run-"+runID+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Allocate returns an absolute path for name inside the workspace. Only bare
// file names are accepted; anything that could escape the root is rejected.
func (w *Workspace) Allocate(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid scratch name %q", name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return "", fmt.Errorf("workspace already disposed")
	}
	return filepath.Join(w.root, name), nil
}

// Dispose removes the directory. Safe to call more than once. A removal
// failure is logged, never returned, so it cannot mask the primary error of
// the run being cleaned up.
func (w *Workspace) Dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return
	}
	w.disposed = true
	if err := os.RemoveAll(w.root); err != nil {
		log.Printf("[workspace] failed to remove %s: %v", w.root, err)
	}
}
