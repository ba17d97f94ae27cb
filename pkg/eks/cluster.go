// Package eks resolves the cluster facts needed to join a node: API server
// endpoint, certificate authority, the Outposts marker, and the cluster DNS
// IP address.
package eks

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/sirupsen/logrus"

	"github.com/awslabs/eksnode/pkg/config"
)

// ErrServiceCIDRRequired is returned when the cluster DNS IP cannot be
// derived because the service CIDR is missing on an IPv6 cluster.
var ErrServiceCIDRRequired = errors.New("--ip-family ipv6 requires --service-cidr to be supplied")

// ErrClusterNotFound is returned when DescribeCluster returns no cluster.
var ErrClusterNotFound = errors.New("cluster not found")

// ClusterBootstrapInfo is the set of cluster facts required to join a node.
type ClusterBootstrapInfo struct {
	// Name of the cluster.
	Name string

	// Endpoint of the cluster API server.
	Endpoint string

	// B64CA is the base64 encoded certificate authority data.
	B64CA string

	// IsLocalCluster marks a local cluster whose control plane runs on
	// Outposts.
	IsLocalCluster bool

	// ClusterDNSIP is the IP address used for DNS queries within the cluster.
	ClusterDNSIP netip.Addr
}

// API is the subset of the EKS client used here.
type API interface {
	DescribeCluster(ctx context.Context, params *awseks.DescribeClusterInput, optFns ...func(*awseks.Options)) (*awseks.DescribeClusterOutput, error)
}

// NewClient builds an EKS client for the given region from the shared AWS
// configuration.
func NewClient(ctx context.Context, region string) (API, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return awseks.NewFromConfig(cfg), nil
}

// DeriveClusterDNSIP derives the cluster DNS server address.
//
// With a service CIDR, the address is the CIDR's network address with the
// last IPv4 octet (or IPv6 segment) set to 10. Without one, an IPv4 cluster
// is assumed to use the EKS default service range that does not overlap the
// VPC: 172.20.0.10 when any VPC CIDR falls in 10.0.0.0/8, 10.100.0.10
// otherwise. An IPv6 cluster requires the service CIDR.
func DeriveClusterDNSIP(serviceCIDR string, ipFamily config.IPFamily, vpcIPv4CIDRBlocks []netip.Prefix) (netip.Addr, error) {
	if serviceCIDR != "" {
		prefix, err := netip.ParsePrefix(serviceCIDR)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("parse service CIDR %q: %w", serviceCIDR, err)
		}
		return dnsAddrFrom(prefix.Masked().Addr()), nil
	}

	if ipFamily == config.IPFamilyIPv6 {
		return netip.Addr{}, ErrServiceCIDRRequired
	}

	ten := netip.MustParsePrefix("10.0.0.0/8")
	for _, cidr := range vpcIPv4CIDRBlocks {
		if ten.Contains(cidr.Addr()) {
			return netip.MustParseAddr("172.20.0.10"), nil
		}
	}

	return netip.MustParseAddr("10.100.0.10"), nil
}

// dnsAddrFrom sets the last octet of an IPv4 network address to 10, or the
// last segment of an IPv6 network address to 0xa.
func dnsAddrFrom(network netip.Addr) netip.Addr {
	if network.Is4() {
		octets := network.As4()
		octets[3] = 10
		return netip.AddrFrom4(octets)
	}

	bytes := network.As16()
	bytes[14] = 0
	bytes[15] = 0xa
	return netip.AddrFrom16(bytes)
}

// GetClusterBootstrapInfo assembles the cluster facts from the command line
// input, calling DescribeCluster only when the endpoint or CA is missing.
// The client may be nil when both are supplied.
func GetClusterBootstrapInfo(ctx context.Context, log *logrus.Logger, client API, opts *config.JoinOptions, vpcIPv4CIDRBlocks []netip.Prefix) (*ClusterBootstrapInfo, error) {
	var dnsIP netip.Addr
	if opts.DNSClusterIP != "" {
		addr, err := netip.ParseAddr(opts.DNSClusterIP)
		if err != nil {
			return nil, fmt.Errorf("parse DNS cluster IP %q: %w", opts.DNSClusterIP, err)
		}
		dnsIP = addr
	} else {
		addr, err := DeriveClusterDNSIP(opts.ServiceCIDR, opts.IPFamily, vpcIPv4CIDRBlocks)
		if err != nil {
			return nil, err
		}
		dnsIP = addr
	}
	log.WithField("address", dnsIP.String()).Info("DNS cluster IP resolved")

	if opts.APIServerEndpoint != "" && opts.B64ClusterCA != "" {
		log.Debug("Cluster details collected from CLI input, no describe API call required")
		return &ClusterBootstrapInfo{
			Name:           opts.ClusterName,
			Endpoint:       opts.APIServerEndpoint,
			B64CA:          opts.B64ClusterCA,
			IsLocalCluster: opts.IsLocalCluster,
			ClusterDNSIP:   dnsIP,
		}, nil
	}

	log.Debug("Insufficient cluster details, describing cluster")
	out, err := client.DescribeCluster(ctx, &awseks.DescribeClusterInput{Name: aws.String(opts.ClusterName)})
	if err != nil {
		return nil, fmt.Errorf("describe cluster %q: %w", opts.ClusterName, err)
	}
	cluster := out.Cluster
	if cluster == nil {
		return nil, fmt.Errorf("%w: %q", ErrClusterNotFound, opts.ClusterName)
	}

	info := &ClusterBootstrapInfo{
		Name:           aws.ToString(cluster.Name),
		Endpoint:       aws.ToString(cluster.Endpoint),
		IsLocalCluster: cluster.OutpostConfig != nil,
		ClusterDNSIP:   dnsIP,
	}
	if cluster.CertificateAuthority != nil {
		info.B64CA = aws.ToString(cluster.CertificateAuthority.Data)
	}

	return info, nil
}
