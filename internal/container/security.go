package container

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gigaclaw/gigaclaw/internal/observability"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// allowlistFile is the on-disk shape of the mount allowlist.
type allowlistFile struct {
	// Roots are host directories under which extra mounts may be requested.
	Roots []string `yaml:"roots"`

	// MainOnly are roots reserved for the main group.
	MainOnly []string `yaml:"main_only"`
}

// Validator filters a group's requested extra mounts against the
// administrator-defined allowlist. Rejections drop the individual mount and
// log the reason; they never fail the turn.
type Validator struct {
	path    string
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	roots    []string
	mainOnly []string
}

// NewValidator loads the allowlist from path. A missing file means an empty
// allowlist (all extra mounts rejected), never allow-all.
func NewValidator(path string, logger *observability.Logger, metrics *observability.Metrics) *Validator {
	v := &Validator{path: path, logger: logger, metrics: metrics}
	v.reload()
	return v
}

func (v *Validator) reload() {
	var roots, mainOnly []string

	data, err := os.ReadFile(v.path)
	switch {
	case os.IsNotExist(err):
		v.logger.Warn(context.Background(), "mount allowlist missing, rejecting all extra mounts", "path", v.path)
	case err != nil:
		v.logger.Error(context.Background(), "failed to read mount allowlist", "path", v.path, "error", err)
	default:
		var file allowlistFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			v.logger.Error(context.Background(), "failed to parse mount allowlist", "path", v.path, "error", err)
			break
		}
		// Roots are symlink-resolved the same way candidates are, so a root
		// behind a symlink (macOS /tmp) still matches resolved candidates.
		for _, r := range file.Roots {
			if abs := resolvePath(r); abs != "" {
				roots = append(roots, abs)
			}
		}
		for _, r := range file.MainOnly {
			if abs := resolvePath(r); abs != "" {
				mainOnly = append(mainOnly, abs)
			}
		}
	}

	v.mu.Lock()
	v.roots = roots
	v.mainOnly = mainOnly
	v.mu.Unlock()
}

// Watch re-loads the allowlist whenever the file changes. It blocks until the
// context is cancelled.
func (v *Validator) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file rather than rewriting it.
	if err := watcher.Add(filepath.Dir(v.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name == v.path && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				v.logger.Info(ctx, "mount allowlist changed, reloading", "path", v.path)
				v.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn(ctx, "allowlist watcher error", "error", err)
		}
	}
}

// Validate returns the subset of requested mounts whose host paths resolve
// inside the allowlist and, for non-main groups, outside main-reserved roots.
func (v *Validator) Validate(requested []models.VolumeMount, groupName string, isMain bool) []models.VolumeMount {
	v.mu.RLock()
	roots := v.roots
	mainOnly := v.mainOnly
	v.mu.RUnlock()

	accepted := make([]models.VolumeMount, 0, len(requested))
	for _, m := range requested {
		resolved := resolvePath(m.HostPath)
		if resolved == "" {
			v.reject(groupName, m, "unresolvable")
			continue
		}
		// The host path must already exist: a missing directory would be
		// created by the container runtime as root, bypassing the uid/gid
		// mapping the runner sets up.
		if _, err := os.Stat(resolved); err != nil {
			v.reject(groupName, m, "missing_host_path")
			continue
		}
		if !underAny(resolved, roots) {
			v.reject(groupName, m, "outside_allowlist")
			continue
		}
		if !isMain && underAny(resolved, mainOnly) {
			v.reject(groupName, m, "main_only")
			continue
		}
		m.HostPath = resolved
		accepted = append(accepted, m)
	}
	return accepted
}

func (v *Validator) reject(groupName string, m models.VolumeMount, reason string) {
	v.logger.Warn(context.Background(), "rejected extra mount",
		"group", groupName,
		"host_path", m.HostPath,
		"container_path", m.ContainerPath,
		"reason", reason,
	)
	if v.metrics != nil {
		v.metrics.MountRejections.WithLabelValues(groupName, reason).Inc()
	}
}

// normalizePath cleans a path to absolute form without requiring it to exist.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return ""
	}
	return filepath.Clean(abs)
}

// resolvePath normalizes and resolves symlinks where possible so traversal
// segments cannot escape an allowlisted root after resolution.
func resolvePath(p string) string {
	abs := normalizePath(p)
	if abs == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// underAny reports whether path equals or is contained in any of the roots.
func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if path == root {
			return true
		}
		if strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
