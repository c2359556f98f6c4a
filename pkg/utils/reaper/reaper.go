package reaper

import (
	"context"
	"os"

	"github.com/m-mizutani/ctxlog"
)

// Reaper deletes the temporary directory trees backing projectiles.
// Cleanup runs on failure paths, so errors here are logged and swallowed
// to never mask the failure being reported.
type Reaper struct{}

// New creates a Reaper
func New() *Reaper {
	return &Reaper{}
}

// Delete recursively removes the tree at path. An empty path or an
// already-missing tree is treated as success.
func (r *Reaper) Delete(ctx context.Context, path string) {
	if path == "" {
		return
	}

	logger := ctxlog.From(ctx)
	if err := os.RemoveAll(path); err != nil {
		logger.Warn("failed to delete project directory",
			"path", path,
			"error", err,
		)
		return
	}
	logger.Debug("deleted project directory", "path", path)
}
