package reaper_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/catapult-sh/catapult/pkg/utils/reaper"
)

func TestReaper_Delete(t *testing.T) {
	ctx := context.Background()
	r := reaper.New()

	t.Run("removes a populated tree", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "project")
		gt.NoError(t, os.MkdirAll(filepath.Join(target, "src"), 0o700))
		gt.NoError(t, os.WriteFile(filepath.Join(target, "src", "main.go"), []byte("package main\n"), 0o600))

		r.Delete(ctx, target)

		if _, err := os.Stat(target); !os.IsNotExist(err) {
			t.Errorf("directory still present after delete: %v", err)
		}
	})

	t.Run("missing path is success", func(t *testing.T) {
		r.Delete(ctx, filepath.Join(t.TempDir(), "never-created"))
	})

	t.Run("empty path is a no-op", func(t *testing.T) {
		r.Delete(ctx, "")
	})

	t.Run("second delete of the same path is success", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "project")
		gt.NoError(t, os.MkdirAll(target, 0o700))

		r.Delete(ctx, target)
		r.Delete(ctx, target)
	})
}
