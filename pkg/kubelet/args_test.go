package kubelet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blang/semver/v4"
)

func TestNewArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version string
		want    Args
	}{
		{
			name:    "1.25 uses in-tree cloud provider",
			version: "1.25.0",
			want: Args{
				NodeIP:                 "10.0.1.15",
				PodInfraContainerImage: "602401143452.dkr.ecr.us-west-2.amazonaws.com/eks/pause:3.8",
				CloudProvider:          "aws",
				ContainerRuntime:       "remote",
			},
		},
		{
			name:    "1.26 uses external cloud provider with hostname override",
			version: "1.26.0",
			want: Args{
				NodeIP:                 "10.0.1.15",
				PodInfraContainerImage: "602401143452.dkr.ecr.us-west-2.amazonaws.com/eks/pause:3.8",
				HostnameOverride:       "ip-10-0-1-15.us-west-2.compute.internal",
				CloudProvider:          "external",
				ContainerRuntime:       "remote",
			},
		},
		{
			name:    "1.27 drops the container-runtime flag",
			version: "1.27.0",
			want: Args{
				NodeIP:                 "10.0.1.15",
				PodInfraContainerImage: "602401143452.dkr.ecr.us-west-2.amazonaws.com/eks/pause:3.8",
				HostnameOverride:       "ip-10-0-1-15.us-west-2.compute.internal",
				CloudProvider:          "external",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NewArgs(
				semver.MustParse(tc.version),
				"10.0.1.15",
				"602401143452.dkr.ecr.us-west-2.amazonaws.com/eks/pause:3.8",
				"ip-10-0-1-15.us-west-2.compute.internal",
			)
			if got != tc.want {
				t.Fatalf("NewArgs() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestArgsRender(t *testing.T) {
	t.Parallel()

	args := Args{
		NodeIP:                 "10.0.0.1",
		PodInfraContainerImage: "registry.k8s.io/pause:3.8",
		CloudProvider:          "external",
		ContainerRuntime:       "remote",
	}

	want := "[Service]\n" +
		"Environment='KUBELET_ARGS=--v=2 \\\n" +
		"\t--node-ip=10.0.0.1 \\\n" +
		"\t--pod-infra-container-image=registry.k8s.io/pause:3.8 \\\n" +
		"\t--cloud-provider=external \\\n" +
		"\t--container-runtime=remote'\n"
	if got := args.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestArgsWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "10-kubelet-args.conf")
	args := Args{
		NodeIP:                 "10.0.0.1",
		PodInfraContainerImage: "registry.k8s.io/pause:3.8",
		CloudProvider:          "external",
	}
	if err := args.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "[Service]\nEnvironment='KUBELET_ARGS=") {
		t.Fatalf("unexpected drop-in content: %q", data)
	}
}

func TestExtraArgsRender(t *testing.T) {
	t.Parallel()

	if got := (ExtraArgs{}).Render(); got != "[Service]\nEnvironment='KUBELET_EXTRA_ARGS='\n" {
		t.Fatalf("empty Render() = %q", got)
	}

	extra := ExtraArgs{Args: "--node-labels=role=worker"}
	want := "[Service]\nEnvironment='KUBELET_EXTRA_ARGS=--node-labels=role=worker'\n"
	if got := extra.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}
