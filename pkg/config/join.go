// Package config holds the option structs for the eksnode subcommands and
// their validation rules.
package config

import (
	"fmt"
	"net/netip"
)

// IPFamily selects the IP family of the cluster.
type IPFamily string

const (
	IPFamilyIPv4 IPFamily = "ipv4"
	IPFamilyIPv6 IPFamily = "ipv6"
)

// LocalDisks selects how instance-store NVMe disks are set up.
type LocalDisks string

const (
	// LocalDisksMount mounts local disks individually.
	LocalDisksMount LocalDisks = "mount"
	// LocalDisksRaid0 mounts local disks in a raid0 configuration.
	LocalDisksRaid0 LocalDisks = "raid0"
)

// DefaultRuntime selects the default containerd runtime variant.
type DefaultRuntime string

const (
	RuntimeContainerd DefaultRuntime = "containerd"
	RuntimeNeuron     DefaultRuntime = "neuron"
	RuntimeNvidia     DefaultRuntime = "nvidia"
)

// JoinOptions carries the `join` subcommand inputs.
type JoinOptions struct {
	// ClusterName is the name of the EKS cluster.
	ClusterName string

	// APIServerEndpoint bypasses the describe-cluster call when supplied
	// together with B64ClusterCA.
	APIServerEndpoint string

	// B64ClusterCA is the base64 encoded cluster CA content.
	B64ClusterCA string

	// ClusterID is the ID of a local EKS cluster on Outposts. Required when
	// IsLocalCluster is set.
	ClusterID string

	// IsLocalCluster marks the cluster as a local cluster on Outposts.
	IsLocalCluster bool

	// IPFamily of the cluster.
	IPFamily IPFamily

	// ServiceCIDR is the IPv4 or IPv6 CIDR range of cluster services.
	ServiceCIDR string

	// DNSClusterIP overrides the IP address used for DNS queries within the
	// cluster.
	DNSClusterIP string

	// PauseContainerImage overrides the sandbox image reference.
	PauseContainerImage string

	// UseMaxPods sets --max-pods for the kubelet.
	UseMaxPods bool

	// KubeletExtraArgs are appended to the kubelet invocation, useful for
	// labels or taints.
	KubeletExtraArgs string

	// ContainerdConfigFile replaces the generated containerd configuration.
	ContainerdConfigFile string

	// LocalDisks selects instance storage handling.
	LocalDisks LocalDisks

	// DefaultContainerRuntime selects the containerd runtime variant.
	DefaultContainerRuntime DefaultRuntime

	// EnableFIPS selects FIPS ECR endpoints for the sandbox image.
	EnableFIPS bool
}

// Validate checks the required input combinations before any network call is
// made.
func (o *JoinOptions) Validate() error {
	if o.ClusterName == "" {
		return fmt.Errorf("--cluster-name is required")
	}

	if o.IsLocalCluster && o.ClusterID == "" {
		return fmt.Errorf("--cluster-id is required when the cluster is a local cluster on Outposts")
	}

	switch o.IPFamily {
	case IPFamilyIPv4, IPFamilyIPv6:
	default:
		return fmt.Errorf("invalid --ip-family %q: must be %q or %q", o.IPFamily, IPFamilyIPv4, IPFamilyIPv6)
	}

	if o.ServiceCIDR != "" {
		if _, err := netip.ParsePrefix(o.ServiceCIDR); err != nil {
			return fmt.Errorf("invalid --service-cidr %q: %w", o.ServiceCIDR, err)
		}
	}

	if o.DNSClusterIP != "" {
		if _, err := netip.ParseAddr(o.DNSClusterIP); err != nil {
			return fmt.Errorf("invalid --dns-cluster-ip %q: %w", o.DNSClusterIP, err)
		}
	}

	switch o.LocalDisks {
	case "", LocalDisksMount, LocalDisksRaid0:
	default:
		return fmt.Errorf("invalid --local-disks %q: must be %q or %q", o.LocalDisks, LocalDisksMount, LocalDisksRaid0)
	}

	switch o.DefaultContainerRuntime {
	case RuntimeContainerd, RuntimeNeuron, RuntimeNvidia:
	default:
		return fmt.Errorf("invalid --default-container-runtime %q", o.DefaultContainerRuntime)
	}

	return nil
}

// CalculateOptions carries the `calculate-max-pods` subcommand inputs.
type CalculateOptions struct {
	// InstanceType used for the calculation. Mutually exclusive with
	// InstanceTypeFromIMDS.
	InstanceType string

	// InstanceTypeFromIMDS queries the instance type from the instance
	// metadata service.
	InstanceTypeFromIMDS bool

	// CNIVersion is the VPC-CNI version, e.g. "v1.12.6-eksbuild.2" or "1.12.6".
	CNIVersion string

	// CNICustomNetworkingEnabled reserves one ENI for the CNI.
	CNICustomNetworkingEnabled bool

	// CNIPrefixDelegationEnabled requests prefix delegation.
	CNIPrefixDelegationEnabled bool

	// CNIMaxENIs caps the ENIs used for prefix delegation; zero uses all
	// ENIs available to the instance.
	CNIMaxENIs int32
}

// Validate checks the calculate-max-pods input combination.
func (o *CalculateOptions) Validate() error {
	if o.InstanceType == "" && !o.InstanceTypeFromIMDS {
		return fmt.Errorf("one of --instance-type or --instance-type-from-imds is required")
	}
	if o.InstanceType != "" && o.InstanceTypeFromIMDS {
		return fmt.Errorf("--instance-type and --instance-type-from-imds are mutually exclusive")
	}
	if o.CNIVersion == "" {
		return fmt.Errorf("--cni-version is required")
	}
	return nil
}
