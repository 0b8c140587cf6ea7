package container

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gigaclaw/gigaclaw/internal/config"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

func testContainerConfig(t *testing.T) *config.Container {
	t.Helper()
	base := resolvedTempDir(t)
	project := filepath.Join(base, "project")
	global := filepath.Join(base, "global")
	for _, d := range []string{project, global} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return &config.Container{
		Image:          "gigaclaw-agent:latest",
		DataDir:        filepath.Join(base, "data"),
		ProjectRoot:    project,
		GlobalDir:      global,
		Timeout:        time.Minute,
		MaxOutputBytes: 1 << 20,
		AllowlistPath:  filepath.Join(base, "allowlist.yaml"),
	}
}

func testBuilder(t *testing.T, cfg *config.Container) *MountBuilder {
	t.Helper()
	v := NewValidator(cfg.AllowlistPath, testLogger(), testMetrics())
	return NewMountBuilder(cfg, v, testLogger())
}

func mountByContainerPath(mounts []models.VolumeMount, ctrPath string) (models.VolumeMount, bool) {
	for _, m := range mounts {
		if m.ContainerPath == ctrPath {
			return m, true
		}
	}
	return models.VolumeMount{}, false
}

func TestBuildMainGroupMounts(t *testing.T) {
	cfg := testContainerConfig(t)
	b := testBuilder(t, cfg)
	group := &models.Group{Folder: "main", Name: "Main", IsMain: true}

	mounts, err := b.Build(group, true)
	if err != nil {
		t.Fatal(err)
	}

	proj, ok := mountByContainerPath(mounts, CtrProjectPath)
	if !ok {
		t.Fatal("main turn missing project mount")
	}
	if proj.HostPath != cfg.ProjectRoot || proj.ReadOnly {
		t.Errorf("project mount = %+v, want rw %s", proj, cfg.ProjectRoot)
	}

	grp, ok := mountByContainerPath(mounts, CtrGroupPath)
	if !ok || grp.HostPath != cfg.GroupDir("main") || grp.ReadOnly {
		t.Errorf("group mount = %+v, want rw %s", grp, cfg.GroupDir("main"))
	}

	if _, ok := mountByContainerPath(mounts, CtrGlobalPath); ok {
		t.Error("main turn must not receive the global mount")
	}

	home, ok := mountByContainerPath(mounts, CtrHomePath)
	if !ok || home.HostPath != cfg.SessionDir("main") {
		t.Errorf("home mount = %+v, want %s", home, cfg.SessionDir("main"))
	}
	if fi, err := os.Stat(filepath.Join(cfg.SessionDir("main"), "credentials")); err != nil || !fi.IsDir() {
		t.Errorf("credentials dir not created: %v", err)
	}

	if _, ok := mountByContainerPath(mounts, CtrIPCPath); !ok {
		t.Error("missing ipc mount")
	}
	for _, sub := range []string{"messages", "tasks"} {
		if fi, err := os.Stat(filepath.Join(cfg.IPCDir("main"), sub)); err != nil || !fi.IsDir() {
			t.Errorf("ipc subdir %s not created: %v", sub, err)
		}
	}
}

func TestBuildNonMainGroupMounts(t *testing.T) {
	cfg := testContainerConfig(t)
	b := testBuilder(t, cfg)
	group := &models.Group{Folder: "family", Name: "Family"}

	mounts, err := b.Build(group, false)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := mountByContainerPath(mounts, CtrProjectPath); ok {
		t.Error("non-main turn must not receive the project mount")
	}

	global, ok := mountByContainerPath(mounts, CtrGlobalPath)
	if !ok {
		t.Fatal("non-main turn missing global mount")
	}
	if !global.ReadOnly || global.HostPath != cfg.GlobalDir {
		t.Errorf("global mount = %+v, want ro %s", global, cfg.GlobalDir)
	}
}

func TestBuildSkipsAbsentGlobalDir(t *testing.T) {
	cfg := testContainerConfig(t)
	cfg.GlobalDir = filepath.Join(cfg.DataDir, "no-such-global")
	b := testBuilder(t, cfg)

	mounts, err := b.Build(&models.Group{Folder: "family", Name: "Family"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mountByContainerPath(mounts, CtrGlobalPath); ok {
		t.Error("absent global dir must not be mounted")
	}
}

func TestBuildFilteredEnv(t *testing.T) {
	cfg := testContainerConfig(t)
	cfg.EnvFile = filepath.Join(filepath.Dir(cfg.DataDir), "host.env")
	cfg.EnvAllowed = []string{"ANTHROPIC_API_KEY", "TZ"}
	hostEnv := strings.Join([]string{
		"# comment",
		"ANTHROPIC_API_KEY=sk-ant-test",
		"AWS_SECRET_ACCESS_KEY=never",
		"TZ=UTC",
		"MALFORMED LINE",
		"",
	}, "\n")
	if err := os.WriteFile(cfg.EnvFile, []byte(hostEnv), 0o600); err != nil {
		t.Fatal(err)
	}

	b := testBuilder(t, cfg)
	mounts, err := b.Build(&models.Group{Folder: "family", Name: "Family"}, false)
	if err != nil {
		t.Fatal(err)
	}

	envMount, ok := mountByContainerPath(mounts, CtrEnvPath)
	if !ok {
		t.Fatal("missing env mount")
	}
	if !envMount.ReadOnly {
		t.Error("env mount must be read-only")
	}

	data, err := os.ReadFile(filepath.Join(envMount.HostPath, "env"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "ANTHROPIC_API_KEY=sk-ant-test") || !strings.Contains(got, "TZ=UTC") {
		t.Errorf("filtered env missing allowed vars:\n%s", got)
	}
	if strings.Contains(got, "AWS_SECRET_ACCESS_KEY") {
		t.Errorf("filtered env leaked a disallowed var:\n%s", got)
	}
	if strings.Contains(got, "MALFORMED") || strings.Contains(got, "#") {
		t.Errorf("filtered env kept junk lines:\n%s", got)
	}
}

func TestBuildSkipsEnvMountWhenNothingAllowed(t *testing.T) {
	cfg := testContainerConfig(t)
	cfg.EnvFile = filepath.Join(filepath.Dir(cfg.DataDir), "host.env")
	cfg.EnvAllowed = []string{"TZ"}
	if err := os.WriteFile(cfg.EnvFile, []byte("SECRET=x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	b := testBuilder(t, cfg)
	mounts, err := b.Build(&models.Group{Folder: "family", Name: "Family"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mountByContainerPath(mounts, CtrEnvPath); ok {
		t.Error("env mount present although no vars survived filtering")
	}
}

func TestBuildAcceptsAllowlistedExtraMount(t *testing.T) {
	cfg := testContainerConfig(t)
	shared := filepath.Join(filepath.Dir(cfg.DataDir), "shared")
	if err := os.MkdirAll(shared, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.AllowlistPath, []byte("roots:\n  - "+shared+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := testBuilder(t, cfg)
	group := &models.Group{
		Folder: "family",
		Name:   "Family",
		Container: &models.ContainerOverrides{
			AdditionalMounts: []models.VolumeMount{
				{HostPath: shared, ContainerPath: "/workspace/shared", ReadOnly: true},
				{HostPath: "/etc", ContainerPath: "/workspace/etc"},
				{HostPath: filepath.Join(shared, "missing"), ContainerPath: "/workspace/missing"},
			},
		},
	}

	mounts, err := b.Build(group, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mountByContainerPath(mounts, "/workspace/shared"); !ok {
		t.Error("allowlisted extra mount dropped")
	}
	if _, ok := mountByContainerPath(mounts, "/workspace/etc"); ok {
		t.Error("non-allowlisted extra mount accepted")
	}
	if _, ok := mountByContainerPath(mounts, "/workspace/missing"); ok {
		t.Error("extra mount with nonexistent host path accepted")
	}
}

func TestBuildMainTurnRequiresProjectRoot(t *testing.T) {
	cfg := testContainerConfig(t)
	cfg.ProjectRoot = ""
	b := testBuilder(t, cfg)

	_, err := b.Build(&models.Group{Folder: "main", Name: "Main", IsMain: true}, true)
	if err == nil {
		t.Fatal("expected error for main turn without project root")
	}
	if !strings.Contains(err.Error(), "project_root") {
		t.Errorf("error = %v, want mention of project_root", err)
	}

	// Non-main turns never mount the project and are unaffected.
	if _, err := b.Build(&models.Group{Folder: "family", Name: "Family"}, false); err != nil {
		t.Fatal(err)
	}
}

func TestBuildRejectsContainerPathCollision(t *testing.T) {
	cfg := testContainerConfig(t)
	shared := filepath.Join(filepath.Dir(cfg.DataDir), "shared")
	if err := os.MkdirAll(shared, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.AllowlistPath, []byte("roots:\n  - "+shared+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := testBuilder(t, cfg)
	group := &models.Group{
		Folder: "family",
		Name:   "Family",
		Container: &models.ContainerOverrides{
			AdditionalMounts: []models.VolumeMount{
				{HostPath: shared, ContainerPath: CtrGroupPath},
			},
		},
	}

	if _, err := b.Build(group, false); err == nil {
		t.Fatal("expected collision error for duplicate container path")
	}
}
