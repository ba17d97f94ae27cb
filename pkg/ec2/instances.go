// Package ec2 resolves instance capacity data and instance state from the
// embedded capacity dataset and the EC2 API.
package ec2

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/awslabs/eksnode/pkg/resource"
)

//go:embed ec2-instances.yaml
var instanceData []byte

// ErrInstanceTypeNotFound is returned when an instance type is in neither
// the embedded dataset nor, for online lookups, the DescribeInstanceTypes
// response.
var ErrInstanceTypeNotFound = errors.New("instance type not found")

// Instance is the capacity data for a single instance type.
type Instance struct {
	// DefaultVCPUs is the default number of vCPUs for the instance.
	DefaultVCPUs int32 `json:"default_vcpus"`

	// EniMaximumPods is the theoretical maximum number of pods based on the
	// maximum number of ENIs and IPv4 addresses per ENI.
	EniMaximumPods int32 `json:"eni_maximum_pods"`

	// Hypervisor is nitro, xen, or unknown.
	Hypervisor string `json:"hypervisor"`

	// InstanceStorageSupported indicates whether local NVMe instance storage
	// is available.
	InstanceStorageSupported bool `json:"instance_storage_supported"`

	// IPv4AddressesPerInterface is the maximum number of IPv4 addresses
	// per ENI.
	IPv4AddressesPerInterface int32 `json:"ipv4_addresses_per_interface"`

	// MaximumNetworkInterfaces is the maximum number of ENIs.
	MaximumNetworkInterfaces int32 `json:"maximum_network_interfaces"`
}

// Shape converts the capacity data into the calculator input.
func (i Instance) Shape() resource.InstanceShape {
	return resource.InstanceShape{
		DefaultVCPUs:              i.DefaultVCPUs,
		Hypervisor:                i.Hypervisor,
		IPv4AddressesPerInterface: i.IPv4AddressesPerInterface,
		MaximumNetworkInterfaces:  i.MaximumNetworkInterfaces,
	}
}

var (
	instancesOnce sync.Once
	instances     map[string]Instance
	instancesErr  error
)

func loadInstances() (map[string]Instance, error) {
	instancesOnce.Do(func() {
		instancesErr = yaml.Unmarshal(instanceData, &instances)
	})
	return instances, instancesErr
}

// GetInstance returns the capacity data for the given instance type from the
// embedded dataset.
func GetInstance(instanceType string) (Instance, error) {
	all, err := loadInstances()
	if err != nil {
		return Instance{}, fmt.Errorf("load instance dataset: %w", err)
	}

	inst, ok := all[instanceType]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %q", ErrInstanceTypeNotFound, instanceType)
	}

	return inst, nil
}
