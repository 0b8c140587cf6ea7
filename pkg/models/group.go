package models

import (
	"time"
)

// Group is a logical, isolated workspace/conversation unit mapped 1:1 to a
// container session. Exactly one registered group holds the main role; it has
// visibility into all other groups' tasks and the host project directory.
type Group struct {
	// Folder is the group's directory name under the data root and the key
	// for sessions, watermarks and IPC state.
	Folder string `json:"folder"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// ChatID is the transport-side chat this group is bound to.
	ChatID string `json:"chat_id"`

	// IsMain marks the single privileged group.
	IsMain bool `json:"is_main"`

	// Container holds optional per-group overrides for the container runner.
	Container *ContainerOverrides `json:"container,omitempty"`

	// RegisteredAt is when the group was registered.
	RegisteredAt time.Time `json:"registered_at"`
}

// ContainerOverrides customizes container execution for one group.
type ContainerOverrides struct {
	// Timeout overrides the global turn timeout when non-zero.
	Timeout time.Duration `json:"timeout,omitempty"`

	// AdditionalMounts are extra bind mounts requested for this group.
	// They are subject to allowlist validation before use.
	AdditionalMounts []VolumeMount `json:"additional_mounts,omitempty"`
}

// TurnTimeout returns the effective timeout for this group's turns.
func (g *Group) TurnTimeout(def time.Duration) time.Duration {
	if g.Container != nil && g.Container.Timeout > 0 {
		return g.Container.Timeout
	}
	return def
}

// VolumeMount is one host-to-container bind mount.
type VolumeMount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only,omitempty"`
}
