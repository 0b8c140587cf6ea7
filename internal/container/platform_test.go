package container

import (
	"strings"
	"testing"

	"github.com/gigaclaw/gigaclaw/pkg/models"
)

func TestResolvePlatformOverride(t *testing.T) {
	p := ResolvePlatform("podman")
	if p.Binary != "podman" {
		t.Errorf("Binary = %q, want override", p.Binary)
	}
	if ResolvePlatform("").Binary == "" {
		t.Error("auto-detected binary is empty")
	}
}

func TestDockerStyleArgs(t *testing.T) {
	args := dockerStyleArgs(RunSpec{
		Image: "gigaclaw-agent:latest",
		UID:   1000,
		GID:   1000,
		Home:  CtrHomePath,
		Mounts: []models.VolumeMount{
			{HostPath: "/data/groups/family", ContainerPath: CtrGroupPath},
			{HostPath: "/data/global", ContainerPath: CtrGlobalPath, ReadOnly: true},
		},
	})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"run --rm -i",
		"--user 1000:1000",
		"-e HOME=" + CtrHomePath,
		"-v /data/groups/family:" + CtrGroupPath,
		"-v /data/global:" + CtrGlobalPath + ":ro",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "gigaclaw-agent:latest" {
		t.Errorf("image not last: %v", args)
	}
	if strings.Contains(joined, "/data/groups/family:"+CtrGroupPath+":ro") {
		t.Error("read-write mount got an :ro suffix")
	}
}
