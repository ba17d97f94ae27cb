// Package imds collects the instance facts needed to join a node to the
// cluster from the EC2 Instance Metadata Service.
package imds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsimds "github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/awslabs/eksnode/pkg/config"
)

// ErrNoNodeIP is returned when the metadata snapshot has no address for the
// requested IP family.
var ErrNoNodeIP = errors.New("no node IP address available for the requested IP family")

// InstanceMetadata is an immutable snapshot of the instance facts used while
// joining the node to the cluster, fetched once per run.
//
// https://docs.aws.amazon.com/AWSEC2/latest/UserGuide/instancedata-data-categories.html
type InstanceMetadata struct {
	// Region the instance is launched in.
	Region string

	// Domain for AWS resources in the region, e.g. "amazonaws.com".
	Domain string

	// AvailabilityZone of the instance.
	AvailabilityZone string

	// MACAddress of the eth0 device.
	MACAddress string

	// VPCIPv4CIDRBlocks of the VPC.
	VPCIPv4CIDRBlocks []netip.Prefix

	// LocalIPv4 is the private IPv4 address of the eth0 device, when present.
	LocalIPv4 netip.Addr

	// IPv6Addresses associated with the eth0 device, when present.
	IPv6Addresses []netip.Addr

	// InstanceType of the instance.
	InstanceType string

	// InstanceID of the instance.
	InstanceID string
}

// NodeIP returns the node IP for the given IP family: the local IPv4
// address for ipv4, the first IPv6 address for ipv6.
func (m *InstanceMetadata) NodeIP(family config.IPFamily) (string, error) {
	switch family {
	case config.IPFamilyIPv6:
		if len(m.IPv6Addresses) == 0 {
			return "", fmt.Errorf("%w: instance has no IPv6 addresses", ErrNoNodeIP)
		}
		return m.IPv6Addresses[0].String(), nil
	default:
		if !m.LocalIPv4.IsValid() {
			return "", fmt.Errorf("%w: instance has no local IPv4 address", ErrNoNodeIP)
		}
		return m.LocalIPv4.String(), nil
	}
}

// Client queries the instance metadata service.
type Client struct {
	imds *awsimds.Client
}

// NewClient builds an IMDS client from the shared AWS configuration.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Client{imds: awsimds.NewFromConfig(cfg)}, nil
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	out, err := c.imds.GetMetadata(ctx, &awsimds.GetMetadataInput{Path: path})
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", path, err)
	}
	defer out.Content.Close()

	data, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("read metadata %q: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// GetInstanceMetadata collects the metadata snapshot used in joining the
// node to the cluster.
func (c *Client) GetInstanceMetadata(ctx context.Context) (*InstanceMetadata, error) {
	region, err := c.get(ctx, "placement/region")
	if err != nil {
		return nil, err
	}
	domain, err := c.get(ctx, "services/domain")
	if err != nil {
		return nil, err
	}
	zone, err := c.get(ctx, "placement/availability-zone")
	if err != nil {
		return nil, err
	}
	mac, err := c.get(ctx, "mac")
	if err != nil {
		return nil, err
	}

	cidrsRaw, err := c.get(ctx, fmt.Sprintf("network/interfaces/macs/%s/vpc-ipv4-cidr-blocks", mac))
	if err != nil {
		return nil, err
	}
	cidrs, err := parseCIDRBlocks(cidrsRaw)
	if err != nil {
		return nil, err
	}

	meta := &InstanceMetadata{
		Region:            region,
		Domain:            domain,
		AvailabilityZone:  zone,
		MACAddress:        mac,
		VPCIPv4CIDRBlocks: cidrs,
	}

	// local-ipv4 and ipv6s are absent on single-family instances; their
	// lookup failures are not fatal.
	if v4, err := c.get(ctx, "local-ipv4"); err == nil {
		addr, err := netip.ParseAddr(v4)
		if err != nil {
			return nil, fmt.Errorf("parse local IPv4 address %q: %w", v4, err)
		}
		meta.LocalIPv4 = addr
	}
	if v6raw, err := c.get(ctx, fmt.Sprintf("network/interfaces/macs/%s/ipv6s", mac)); err == nil {
		for _, line := range strings.Fields(v6raw) {
			addr, err := netip.ParseAddr(line)
			if err != nil {
				return nil, fmt.Errorf("parse IPv6 address %q: %w", line, err)
			}
			meta.IPv6Addresses = append(meta.IPv6Addresses, addr)
		}
	}

	if meta.InstanceType, err = c.get(ctx, "instance-type"); err != nil {
		return nil, err
	}
	if meta.InstanceID, err = c.get(ctx, "instance-id"); err != nil {
		return nil, err
	}

	return meta, nil
}

// GetInstanceType returns just the instance type, used by the standalone
// max-pods calculation.
func (c *Client) GetInstanceType(ctx context.Context) (string, error) {
	return c.get(ctx, "instance-type")
}

// GetRegion returns the region the instance is launched in.
func (c *Client) GetRegion(ctx context.Context) (string, error) {
	return c.get(ctx, "placement/region")
}

func parseCIDRBlocks(raw string) ([]netip.Prefix, error) {
	var blocks []netip.Prefix
	for _, line := range strings.Fields(raw) {
		p, err := netip.ParsePrefix(line)
		if err != nil {
			return nil, fmt.Errorf("parse VPC IPv4 CIDR block %q: %w", line, err)
		}
		blocks = append(blocks, p)
	}
	return blocks, nil
}
