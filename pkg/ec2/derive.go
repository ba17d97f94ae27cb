package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// DeriveInstance resolves capacity data for an instance type that is absent
// from the embedded dataset by calling DescribeInstanceTypes. The ENI count
// comes from the default network card; secondary cards do not carry pod IPs.
func DeriveInstance(ctx context.Context, client API, instanceType string) (Instance, error) {
	out, err := client.DescribeInstanceTypes(ctx, &awsec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2types.InstanceType{ec2types.InstanceType(instanceType)},
	})
	if err != nil {
		return Instance{}, fmt.Errorf("describe instance type %q: %w", instanceType, err)
	}
	if len(out.InstanceTypes) == 0 {
		return Instance{}, fmt.Errorf("%w: %q", ErrInstanceTypeNotFound, instanceType)
	}

	info := out.InstanceTypes[0]
	inst := Instance{
		Hypervisor:               string(info.Hypervisor),
		InstanceStorageSupported: aws.ToBool(info.InstanceStorageSupported),
	}
	if info.VCpuInfo != nil {
		inst.DefaultVCPUs = aws.ToInt32(info.VCpuInfo.DefaultVCpus)
	}
	if net := info.NetworkInfo; net != nil {
		inst.IPv4AddressesPerInterface = aws.ToInt32(net.Ipv4AddressesPerInterface)
		inst.MaximumNetworkInterfaces = aws.ToInt32(net.MaximumNetworkInterfaces)

		defaultCard := aws.ToInt32(net.DefaultNetworkCardIndex)
		for _, card := range net.NetworkCards {
			if aws.ToInt32(card.NetworkCardIndex) == defaultCard {
				inst.MaximumNetworkInterfaces = aws.ToInt32(card.MaximumNetworkInterfaces)
				break
			}
		}
	}

	inst.EniMaximumPods = inst.MaximumNetworkInterfaces*(inst.IPv4AddressesPerInterface-1) + 2

	return inst, nil
}

// ResolveInstance looks up the embedded dataset first and falls back to
// DescribeInstanceTypes for types the dataset has not caught up with yet.
// The client may be nil when only offline lookup is wanted.
func ResolveInstance(ctx context.Context, client API, instanceType string) (Instance, error) {
	inst, err := GetInstance(instanceType)
	if err == nil {
		return inst, nil
	}
	if client == nil {
		return Instance{}, err
	}

	return DeriveInstance(ctx, client, instanceType)
}
