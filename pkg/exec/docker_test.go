package exec

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDockerArgsBasics(t *testing.T) {
	d := NewDockerExec("ubuntu:24.04")

	opts := DefaultExecOpts()
	args, err := d.buildDockerArgs("agentcore-exec-1", []string{"echo", "hi"}, &opts)
	if err != nil {
		t.Fatalf("buildDockerArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"run --rm --name agentcore-exec-1",
		"--security-opt no-new-privileges",
		"--cpus 2",
		"--memory 2g",
		"--pids-limit 1024",
		"ubuntu:24.04 echo hi",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestBuildDockerArgsNetworkAndReadOnly(t *testing.T) {
	d := NewDockerExec("alpine")

	args, err := d.buildDockerArgs("c", []string{"true"}, &Opts{
		ReadOnly:        true,
		NetworkDisabled: true,
	})
	if err != nil {
		t.Fatalf("buildDockerArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--read-only") {
		t.Error("expected --read-only")
	}
	if !strings.Contains(joined, "--network none") {
		t.Error("expected --network none")
	}
}

func TestBuildDockerArgsWorkDirMount(t *testing.T) {
	d := NewDockerExec("alpine")
	dir := t.TempDir()

	args, err := d.buildDockerArgs("c", []string{"ls"}, &Opts{WorkDir: dir})
	if err != nil {
		t.Fatalf("buildDockerArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, dir+":/workspace:rw") {
		t.Errorf("expected workspace mount in %s", joined)
	}
	if !strings.Contains(joined, "--workdir /workspace") {
		t.Error("expected container workdir set")
	}
}

func TestBuildDockerArgsUserOverride(t *testing.T) {
	d := NewDockerExec("alpine")

	args, err := d.buildDockerArgs("c", []string{"id"}, &Opts{User: "1000:1000"})
	if err != nil {
		t.Fatalf("buildDockerArgs: %v", err)
	}
	if !strings.Contains(strings.Join(args, " "), "--user 1000:1000") {
		t.Error("expected explicit user")
	}
}

func TestGenerateContainerNameUnique(t *testing.T) {
	d := NewDockerExec("alpine")

	a := d.generateContainerName()
	time.Sleep(time.Nanosecond)
	b := d.generateContainerName()

	if a == b {
		t.Errorf("container names must be unique: %s", a)
	}
	if !strings.HasPrefix(a, "agentcore-exec-") {
		t.Errorf("unexpected prefix: %s", a)
	}
}

func TestDockerImageAccessors(t *testing.T) {
	d := NewDockerExec("alpine")
	if d.GetImage() != "alpine" {
		t.Errorf("GetImage = %q", d.GetImage())
	}
	d.SetImage("ubuntu:24.04")
	if d.GetImage() != "ubuntu:24.04" {
		t.Errorf("GetImage after set = %q", d.GetImage())
	}
}
