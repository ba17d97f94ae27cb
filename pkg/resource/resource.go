// Package resource calculates node capacity and kube-reserved resource
// quantities from instance facts. Every function here is pure; callers
// supply the instance data (see pkg/ec2) and version strings.
package resource

import (
	"fmt"
	"math"

	"github.com/blang/semver/v4"

	"github.com/awslabs/eksnode/pkg/utils"
)

// minPrefixDelegationCNIVersion is the first VPC-CNI release that supports
// allocating /28 prefixes per ENI instead of individual addresses.
var minPrefixDelegationCNIVersion = semver.MustParse("1.9.0")

// HypervisorNitro identifies the nitro hypervisor class in the instance
// capacity dataset. Prefix delegation is only available on nitro instances.
const HypervisorNitro = "nitro"

// EniMaxPods calculates the max number of pods an instance can theoretically
// support based on ENIs.
//
// With prefix delegation, /28 CIDRs are allocated per IP available on the ENI:
//
//	numENIs * ((IPv4s per ENI - 1) * 16) + 2
//
// And without:
//
//	numENIs * (IPv4s per ENI - 1) + 2
func EniMaxPods(numENIs, ipv4sPerENI int32, prefixDelegation bool) int32 {
	modifier := int32(1)
	if prefixDelegation {
		modifier = 16
	}

	return numENIs*((ipv4sPerENI-1)*modifier) + 2
}

// MemoryMebibytesToReserve returns the amount of memory to reserve for
// kubeReserved in mebibytes (Mi).
//
// KubeReserved is a function of pod density, so the reservation for system
// daemons considers the maximum number of pods the instance supports.
func MemoryMebibytesToReserve(maxPods int32) int32 {
	return 11*maxPods + 255
}

// CPUMillicoresToReserve returns the amount of CPU to reserve for
// kubeReserved in millicores (mCPU) from the total number of vCPUs available
// on the instance.
//
// The reservation is a tiered share of the available cores:
// 6% of the first core, 1% of the next core (up to 2), 0.5% of the next two
// cores (up to 4), and 0.25% of any core above 4. 400mCPU is added when max
// pods > 110, and the sum is rounded to the nearest 10mCPU.
func CPUMillicoresToReserve(maxPods, numCPUs int32) int32 {
	var reserved int32
	for cpu := int32(0); cpu < numCPUs; cpu++ {
		switch {
		case cpu == 0:
			reserved += 600
		case cpu == 1 || cpu == 2:
			reserved += 100
		case cpu == 3 || cpu == 4:
			reserved += 50
		default:
			reserved += 25
		}
	}

	if maxPods > 110 {
		reserved += 400
	}

	return int32(math.Round(float64(reserved)/100.0)) * 10
}

// PrefixDelegationSupported reports whether the given VPC-CNI version
// supports prefix delegation. The version string may carry a leading "v" and
// a build suffix, e.g. "v1.9.0-eksbuild.2".
func PrefixDelegationSupported(cniVersion string) (bool, error) {
	ver, err := utils.GetSemver(cniVersion)
	if err != nil {
		return false, fmt.Errorf("parse CNI version %q: %w", cniVersion, err)
	}

	return ver.GE(minPrefixDelegationCNIVersion), nil
}

// MaxPodsInput carries the CNI-level knobs for resolving max pods.
type MaxPodsInput struct {
	// CNIVersion is the VPC-CNI addon version, e.g. "v1.12.6-eksbuild.2".
	CNIVersion string

	// CustomNetworkingEnabled reserves one ENI for the CNI itself.
	CustomNetworkingEnabled bool

	// PrefixDelegationEnabled requests prefix delegation; it is only honored
	// on nitro instances with a CNI version that supports it.
	PrefixDelegationEnabled bool

	// MaxENIs caps the number of ENIs used for the calculation. Zero means
	// all ENIs available to the instance.
	MaxENIs int32
}

// InstanceShape is the subset of the capacity dataset needed to resolve max
// pods for a single instance type.
type InstanceShape struct {
	DefaultVCPUs              int32
	Hypervisor                string
	IPv4AddressesPerInterface int32
	MaximumNetworkInterfaces  int32
}

// ResolveMaxPods computes the schedulable max-pods value for an instance.
//
// The theoretical ENI-based value is clamped to 110, or to 250 on instances
// with more than 30 default vCPUs, matching the upstream EKS AMI behavior.
func ResolveMaxPods(shape InstanceShape, input MaxPodsInput) (int32, error) {
	prefixSupported, err := PrefixDelegationSupported(input.CNIVersion)
	if err != nil {
		return 0, err
	}

	// Take the min of the caller-supplied ENI cap and the ENIs available to
	// the instance.
	numENIs := shape.MaximumNetworkInterfaces
	if input.MaxENIs > 0 && input.MaxENIs < numENIs {
		numENIs = input.MaxENIs
	}

	if input.CustomNetworkingEnabled {
		// Custom networking reserves one ENI for the CNI.
		numENIs--
	}

	prefixDelegation := shape.Hypervisor == HypervisorNitro &&
		prefixSupported &&
		input.PrefixDelegationEnabled

	maxPods := EniMaxPods(numENIs, shape.IPv4AddressesPerInterface, prefixDelegation)

	limit := int32(110)
	if shape.DefaultVCPUs > 30 {
		limit = 250
	}
	if maxPods > limit {
		return limit, nil
	}

	return maxPods, nil
}
