package container

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gigaclaw/gigaclaw/internal/config"
	"github.com/gigaclaw/gigaclaw/internal/observability"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// Fixed container-side paths. The session directory doubles as the child's
// HOME so agent credentials and conversation state persist across turns.
const (
	CtrProjectPath = "/workspace/project"
	CtrGroupPath   = "/workspace/group"
	CtrGlobalPath  = "/workspace/global"
	CtrHomePath    = "/home/agent"
	CtrIPCPath     = "/workspace/ipc"
	CtrEnvPath     = "/workspace/env"
)

// filteredEnvName is the filename of the filtered environment file inside the
// per-group env directory.
const filteredEnvName = "env"

// MountBuilder derives the fixed and variable mount set for a group's turn.
type MountBuilder struct {
	cfg       *config.Container
	validator *Validator
	logger    *observability.Logger
}

// NewMountBuilder creates a mount builder.
func NewMountBuilder(cfg *config.Container, validator *Validator, logger *observability.Logger) *MountBuilder {
	return &MountBuilder{cfg: cfg, validator: validator, logger: logger}
}

// Build composes the mount set in fixed order: workspace dirs, session/home
// dir, IPC dir, filtered env file dir, then validator-accepted extras. A
// container-path collision is a configuration error, not silently resolved.
func (b *MountBuilder) Build(group *models.Group, isMainTurn bool) ([]models.VolumeMount, error) {
	var mounts []models.VolumeMount

	groupDir := b.cfg.GroupDir(group.Folder)
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create group dir: %w", err)
	}

	if isMainTurn {
		if b.cfg.ProjectRoot == "" {
			return nil, fmt.Errorf("container.project_root is required for the main group")
		}
		mounts = append(mounts,
			models.VolumeMount{HostPath: b.cfg.ProjectRoot, ContainerPath: CtrProjectPath},
			models.VolumeMount{HostPath: groupDir, ContainerPath: CtrGroupPath},
		)
	} else {
		mounts = append(mounts, models.VolumeMount{HostPath: groupDir, ContainerPath: CtrGroupPath})
		if b.cfg.GlobalDir != "" {
			if _, err := os.Stat(b.cfg.GlobalDir); err == nil {
				mounts = append(mounts, models.VolumeMount{
					HostPath:      b.cfg.GlobalDir,
					ContainerPath: CtrGlobalPath,
					ReadOnly:      true,
				})
			}
		}
	}

	sessionDir := b.cfg.SessionDir(group.Folder)
	if err := os.MkdirAll(filepath.Join(sessionDir, "credentials"), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	mounts = append(mounts, models.VolumeMount{HostPath: sessionDir, ContainerPath: CtrHomePath})

	ipcDir := b.cfg.IPCDir(group.Folder)
	for _, sub := range []string{"messages", "tasks"} {
		if err := os.MkdirAll(filepath.Join(ipcDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create ipc dir: %w", err)
		}
	}
	mounts = append(mounts, models.VolumeMount{HostPath: ipcDir, ContainerPath: CtrIPCPath})

	envDir, hasEnv, err := b.writeFilteredEnv(group.Folder)
	if err != nil {
		return nil, err
	}
	if hasEnv {
		mounts = append(mounts, models.VolumeMount{HostPath: envDir, ContainerPath: CtrEnvPath, ReadOnly: true})
	}

	if group.Container != nil && len(group.Container.AdditionalMounts) > 0 {
		extras := b.validator.Validate(group.Container.AdditionalMounts, group.Name, isMainTurn)
		mounts = append(mounts, extras...)
	}

	seen := make(map[string]string, len(mounts))
	for _, m := range mounts {
		if prev, dup := seen[m.ContainerPath]; dup {
			return nil, fmt.Errorf("container path collision at %s: %s and %s", m.ContainerPath, prev, m.HostPath)
		}
		seen[m.ContainerPath] = m.HostPath
	}
	return mounts, nil
}

// writeFilteredEnv line-filters the host env file to the explicit allow-set
// of variable names and writes the result into the group's env directory.
// Nothing outside the allow-set is ever propagated into the mount.
func (b *MountBuilder) writeFilteredEnv(folder string) (string, bool, error) {
	if b.cfg.EnvFile == "" {
		return "", false, nil
	}
	src, err := os.Open(b.cfg.EnvFile)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("open env file: %w", err)
	}
	defer src.Close()

	allowed := make(map[string]bool, len(b.cfg.EnvAllowed))
	for _, name := range b.cfg.EnvAllowed {
		allowed[name] = true
	}

	var kept []string
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, _, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if allowed[strings.TrimSpace(name)] {
			kept = append(kept, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("read env file: %w", err)
	}
	if len(kept) == 0 {
		return "", false, nil
	}

	envDir := b.cfg.EnvDir(folder)
	if err := os.MkdirAll(envDir, 0o700); err != nil {
		return "", false, fmt.Errorf("create env dir: %w", err)
	}
	content := strings.Join(kept, "\n") + "\n"
	dst := filepath.Join(envDir, filteredEnvName)
	if err := os.WriteFile(dst, []byte(content), 0o600); err != nil {
		return "", false, fmt.Errorf("write filtered env: %w", err)
	}

	b.logger.Debug(context.Background(), "filtered env file written", "group", folder, "vars", len(kept))
	return envDir, true, nil
}
