package ec2

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
)

// ErrPrivateDNSNameNotReady is returned while EC2 has not yet assigned a
// private DNS name to the instance. Callers retry on this error; the name
// becomes the node name and must be present before the kubelet starts.
var ErrPrivateDNSNameNotReady = errors.New("private DNS name not yet available")

// GetPrivateDNSName returns the instance's private DNS name, or
// ErrPrivateDNSNameNotReady when EC2 has not assigned one yet.
func GetPrivateDNSName(ctx context.Context, client API, instanceID string) (string, error) {
	out, err := client.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return "", fmt.Errorf("describe instance %q: %w", instanceID, err)
	}

	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if name := aws.ToString(inst.PrivateDnsName); name != "" {
				return name, nil
			}
		}
	}

	return "", fmt.Errorf("%w: instance %q", ErrPrivateDNSNameNotReady, instanceID)
}
