package container

import (
	"fmt"
	"runtime"

	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// RunSpec carries everything the platform needs to shape one invocation.
type RunSpec struct {
	Image  string
	Mounts []models.VolumeMount
	UID    int
	GID    int
	Home   string
}

// Platform is the resolved-at-startup container invocation strategy: the
// binary name plus the function shaping its argument list. Tests substitute
// their own to run turns against a plain shell.
type Platform struct {
	Binary    string
	BuildArgs func(spec RunSpec) []string
}

// ResolvePlatform picks the container binary for the host OS, or honors an
// explicit override from configuration.
func ResolvePlatform(binaryOverride string) Platform {
	binary := binaryOverride
	if binary == "" {
		switch runtime.GOOS {
		case "darwin":
			binary = "container"
		default:
			binary = "docker"
		}
	}
	return Platform{Binary: binary, BuildArgs: dockerStyleArgs}
}

// dockerStyleArgs builds the docker-compatible argument list: interactive
// ephemeral run, host uid/gid so files created inside stay host-writable,
// HOME pinned to the session mount, one -v flag per mount, image last.
func dockerStyleArgs(spec RunSpec) []string {
	args := []string{"run", "--rm", "-i",
		"--user", fmt.Sprintf("%d:%d", spec.UID, spec.GID),
		"-e", "HOME=" + spec.Home,
	}
	for _, m := range spec.Mounts {
		bind := m.HostPath + ":" + m.ContainerPath
		if m.ReadOnly {
			bind += ":ro"
		}
		args = append(args, "-v", bind)
	}
	return append(args, spec.Image)
}
