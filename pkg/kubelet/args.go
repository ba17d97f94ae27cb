package kubelet

import (
	"fmt"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/awslabs/eksnode/pkg/utils/utilio"
)

// Args are the command line arguments passed to the kubelet through the
// KUBELET_ARGS environment variable in a systemd drop-in.
type Args struct {
	NodeIP                 string
	PodInfraContainerImage string

	// HostnameOverride pins the Node object name to EC2's PrivateDnsName.
	// With the external cloud provider the kubelet would otherwise use
	// /etc/hostname, which differs from PrivateDnsName when the VPC carries
	// a custom domain-name in its DHCP options, and aws-iam-authenticator
	// only authorizes the node under its PrivateDnsName.
	HostnameOverride string

	CloudProvider string

	// ContainerRuntime carries --container-runtime=remote for versions that
	// still have the flag; it was removed in 1.27.
	ContainerRuntime string
}

// NewArgs builds the kubelet arguments for the given kubelet version.
func NewArgs(kubeletVersion semver.Version, nodeIP, pauseImage, privateDNSName string) Args {
	args := Args{
		NodeIP:                 nodeIP,
		PodInfraContainerImage: pauseImage,
		CloudProvider:          "external",
	}

	if kubeletVersion.LT(semver.MustParse("1.26.0")) {
		args.CloudProvider = "aws"
	} else {
		args.HostnameOverride = privateDNSName
	}

	if kubeletVersion.LT(semver.MustParse("1.27.0")) {
		args.ContainerRuntime = "remote"
	}

	return args
}

// Render produces the drop-in file content.
func (a Args) Render() string {
	args := []string{
		"--v=2",
		fmt.Sprintf("--node-ip=%s", a.NodeIP),
		fmt.Sprintf("--pod-infra-container-image=%s", a.PodInfraContainerImage),
	}
	if a.HostnameOverride != "" {
		args = append(args, fmt.Sprintf("--hostname-override=%s", a.HostnameOverride))
	}
	args = append(args, fmt.Sprintf("--cloud-provider=%s", a.CloudProvider))
	if a.ContainerRuntime != "" {
		args = append(args, fmt.Sprintf("--container-runtime=%s", a.ContainerRuntime))
	}

	return fmt.Sprintf("[Service]\nEnvironment='KUBELET_ARGS=%s'\n", strings.Join(args, " \\\n\t"))
}

// Write writes the drop-in to the given path.
func (a Args) Write(path string) error {
	return utilio.WriteFileOwned(path, []byte(a.Render()), 0o644)
}

// ExtraArgs carries user-supplied kubelet arguments such as node labels or
// taints, passed through verbatim in a separate drop-in.
type ExtraArgs struct {
	Args string
}

// Render produces the drop-in file content.
func (e ExtraArgs) Render() string {
	return fmt.Sprintf("[Service]\nEnvironment='KUBELET_EXTRA_ARGS=%s'\n", e.Args)
}

// Write writes the drop-in to the given path.
func (e ExtraArgs) Write(path string) error {
	return utilio.WriteFileOwned(path, []byte(e.Render()), 0o644)
}
