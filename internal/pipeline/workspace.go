package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// workspace is the per-job scratch directory. Downloads are grouped per
// dataset so tile packages from different datasets cannot collide.
type workspace struct {
	root    string
	outputs string
}

func newWorkspace(rootDir, jobID string) (*workspace, error) {
	root := filepath.Join(rootDir, "job-"+jobID)
	outputs := filepath.Join(root, "outputs")
	if err := os.MkdirAll(outputs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}
	return &workspace{root: root, outputs: outputs}, nil
}

// datasetDownloads returns the download directory for one dataset, creating
// it on first use.
func (w *workspace) datasetDownloads(dataset string) (string, error) {
	dir := filepath.Join(w.root, "downloads", dataset)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir %s: %w", dir, err)
	}
	return dir, nil
}

func (w *workspace) cleanup(logger *slog.Logger) {
	if err := os.RemoveAll(w.root); err != nil {
		logger.Warn("workspace cleanup failed", "path", w.root, "error", err)
	}
}
