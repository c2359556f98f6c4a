package scaffold

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/interfaces"
	"github.com/catapult-sh/catapult/pkg/domain/model"
	"github.com/catapult-sh/catapult/pkg/domain/types"
)

// Preparer materializes a minimal project tree into a fresh temp
// directory. The real template catalog is an external collaborator; this
// default implementation produces the baseline files every booster
// carries so the launch pipeline has something to provision.
type Preparer struct{}

// New creates the default Preparer
func New() *Preparer {
	return &Preparer{}
}

// Prepare writes the project tree and returns the directory path. The
// caller owns deletion.
func (p *Preparer) Prepare(ctx context.Context, input model.PrepareInput) (string, error) {
	if input.ProjectName == "" {
		return "", goerr.Wrap(types.ErrInvalidArgument, "project name must be specified")
	}

	dir, err := newProjectDir()
	if err != nil {
		return "", err
	}

	readme := fmt.Sprintf("# %s\n\nGenerated from mission %q, booster %q.\n",
		input.ProjectName, input.Mission, input.Booster)
	files := map[string]string{
		"README.md":  readme,
		".gitignore": "target/\nnode_modules/\n*.log\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			os.RemoveAll(dir)
			return "", goerr.Wrap(err, "failed to write project file", goerr.V("file", name))
		}
	}

	ctxlog.From(ctx).Debug("materialized project",
		"dir", dir,
		"mission", input.Mission,
		"booster", input.Booster,
	)
	return dir, nil
}

var _ interfaces.Preparer = (*Preparer)(nil)

// Extract unpacks uploaded zip contents into a fresh project directory
// and returns its path. Entries escaping the directory are rejected.
func Extract(ctx context.Context, zipData []byte) (string, error) {
	dir, err := newProjectDir()
	if err != nil {
		return "", err
	}

	reader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		os.RemoveAll(dir)
		return "", goerr.Wrap(types.ErrInvalidArgument, "upload is not a valid zip archive")
	}

	var count int
	for _, file := range reader.File {
		if err := extractFile(file, dir); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		count++
	}

	ctxlog.From(ctx).Debug("extracted uploaded project", "dir", dir, "files", count)
	return dir, nil
}

func newProjectDir() (string, error) {
	dir, err := os.MkdirTemp("", "catapult-projectile-*")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create project directory")
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		os.RemoveAll(dir)
		return "", goerr.Wrap(err, "failed to set project directory permissions")
	}
	return dir, nil
}

func extractFile(file *zip.File, dir string) error {
	target := filepath.Join(dir, file.Name)
	// Zip entries are attacker-controlled; never write outside dir
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return goerr.Wrap(types.ErrInvalidArgument, "zip entry escapes the project directory", goerr.V("entry", file.Name))
	}

	if file.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o700); err != nil {
			return goerr.Wrap(err, "failed to create directory", goerr.V("entry", file.Name))
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return goerr.Wrap(err, "failed to create parent directory", goerr.V("entry", file.Name))
	}

	src, err := file.Open()
	if err != nil {
		return goerr.Wrap(err, "failed to open zip entry", goerr.V("entry", file.Name))
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return goerr.Wrap(err, "failed to create file", goerr.V("entry", file.Name))
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return goerr.Wrap(err, "failed to write file", goerr.V("entry", file.Name))
	}
	return nil
}
