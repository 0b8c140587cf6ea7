package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the main configuration structure for the gigaclaw host.
type Config struct {
	Container Container `yaml:"container"`
	Telegram  Telegram  `yaml:"telegram"`
	Router    Router    `yaml:"router"`
	Scheduler Scheduler `yaml:"scheduler"`
	Storage   Storage   `yaml:"storage"`
	Logging   Logging   `yaml:"logging"`
	Metrics   Metrics   `yaml:"metrics"`
	Tracing   Tracing   `yaml:"tracing"`
}

// Container configures the container runner and mount construction.
type Container struct {
	// Image is the pre-built agent image invoked by name.
	Image string `yaml:"image"`

	// Binary overrides the platform-resolved container binary (docker,
	// podman, container). Empty means auto-detect per host OS.
	Binary string `yaml:"binary"`

	// DataDir is the root under which group workspaces, sessions and IPC
	// directories live.
	DataDir string `yaml:"data_dir"`

	// ProjectRoot is the host project directory mounted read-write for main
	// group turns.
	ProjectRoot string `yaml:"project_root"`

	// GlobalDir, if it exists, is mounted read-only for non-main groups.
	GlobalDir string `yaml:"global_dir"`

	// Timeout is the global default wall-clock limit per turn.
	Timeout time.Duration `yaml:"timeout"`

	// MaxOutputBytes caps accumulated stdout and stderr, each.
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// AllowlistPath is the mount allowlist file. Missing file means an empty
	// allowlist: all extra mounts rejected, never allow-all.
	AllowlistPath string `yaml:"allowlist_path"`

	// EnvFile is the host environment file to line-filter into the container.
	EnvFile string `yaml:"env_file"`

	// EnvAllowed lists the only variable names propagated from EnvFile.
	EnvAllowed []string `yaml:"env_allowed"`
}

// Telegram configures the transport adapter.
type Telegram struct {
	Token string `yaml:"token"`
}

// Router configures trigger policy and result forwarding.
type Router struct {
	// TriggerPrefix must start a message for non-main groups to trigger a
	// turn. Matched case-insensitively at a word boundary.
	TriggerPrefix string `yaml:"trigger_prefix"`

	// ResponsePrefix labels forwarded agent results.
	ResponsePrefix string `yaml:"response_prefix"`

	// AssistantName is excluded as a sender when assembling prompt windows.
	AssistantName string `yaml:"assistant_name"`
}

// Scheduler configures scheduled-task polling.
type Scheduler struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Storage configures the sqlite store.
type Storage struct {
	Path string `yaml:"path"`
}

// Logging configures structured log output.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Tracing configures OTLP trace export. An empty endpoint disables export.
type Tracing struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	Environment string  `yaml:"environment"`
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Container.Image == "" {
		return fmt.Errorf("container.image is required")
	}
	if c.Container.DataDir == "" {
		return fmt.Errorf("container.data_dir is required")
	}
	if c.Container.Timeout == 0 {
		c.Container.Timeout = 5 * time.Minute
	}
	if c.Container.MaxOutputBytes == 0 {
		c.Container.MaxOutputBytes = 1 << 20 // 1 MiB per stream
	}
	if c.Container.AllowlistPath == "" {
		c.Container.AllowlistPath = filepath.Join(c.Container.DataDir, "mount_allowlist.yaml")
	}
	if len(c.Container.EnvAllowed) == 0 {
		c.Container.EnvAllowed = []string{
			"ANTHROPIC_API_KEY",
			"ANTHROPIC_BASE_URL",
			"OPENAI_API_KEY",
			"OPENAI_BASE_URL",
			"TZ",
		}
	}
	if c.Router.TriggerPrefix == "" {
		c.Router.TriggerPrefix = "@claw"
	}
	if c.Router.ResponsePrefix == "" {
		c.Router.ResponsePrefix = "🦀"
	}
	if c.Router.AssistantName == "" {
		c.Router.AssistantName = "gigaclaw"
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = 30 * time.Second
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.Container.DataDir, "gigaclaw.db")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	return nil
}

// GroupDir returns the group's workspace directory on the host.
func (c *Container) GroupDir(folder string) string {
	return filepath.Join(c.DataDir, "groups", folder)
}

// SessionDir returns the group's persistent home/session directory. Mounting
// it at the container home path is what gives session continuity its
// physical backing.
func (c *Container) SessionDir(folder string) string {
	return filepath.Join(c.DataDir, "sessions", folder)
}

// IPCDir returns the group's IPC directory holding snapshots and the
// messages/tasks subdirectories.
func (c *Container) IPCDir(folder string) string {
	return filepath.Join(c.DataDir, "ipc", folder)
}

// EnvDir returns the per-group directory holding the filtered env file.
func (c *Container) EnvDir(folder string) string {
	return filepath.Join(c.DataDir, "env", folder)
}

// LogDir returns the group's diagnostic log directory.
func (c *Container) LogDir(folder string) string {
	return filepath.Join(c.DataDir, "logs", folder)
}
