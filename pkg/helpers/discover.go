package helpers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/ussdflow/pkg/adapters/process"
)

// manifestExtensions are the file types Discover treats as helper manifests.
var manifestExtensions = []string{".yaml", ".yml", ".json"}

// Discover walks root recursively and registers every helper manifest it finds as a
// process-backed capability. The name is the manifest path relative to root, without
// extension and with forward slashes (e.g. billing/validateAmount).
// Invalid manifests are logged and skipped. A missing root is not an error.
func (r *Registry) Discover(ctx context.Context, root string, runner *process.Runner) (int, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("Helpers directory not found", "path", root)
		return 0, nil
	}

	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !slices.Contains(manifestExtensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))

		m, err := process.LoadManifest(path)
		if err != nil {
			r.logger.Warn("Skipping invalid helper manifest", "path", path, "err", err)
			return nil
		}

		var capability any
		switch m.Kind {
		case process.KindValidator:
			capability = &process.Validator{Name: name, Manifest: m, Runner: runner}
		case process.KindHandler:
			capability = &process.Handler{Name: name, Manifest: m, Runner: runner}
		}
		if err := r.Register(name, capability); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("discover helpers in %s: %w", root, err)
	}

	r.logger.Info("Discovered helpers", "path", root, "count", count)
	return count, nil
}
