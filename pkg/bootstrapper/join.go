package bootstrapper

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/blang/semver/v4"
	"github.com/sirupsen/logrus"

	"github.com/awslabs/eksnode/pkg/config"
	"github.com/awslabs/eksnode/pkg/containerd"
	"github.com/awslabs/eksnode/pkg/ec2"
	"github.com/awslabs/eksnode/pkg/ecr"
	"github.com/awslabs/eksnode/pkg/eks"
	"github.com/awslabs/eksnode/pkg/gpu"
	"github.com/awslabs/eksnode/pkg/imds"
	"github.com/awslabs/eksnode/pkg/kubelet"
	"github.com/awslabs/eksnode/pkg/resource"
	"github.com/awslabs/eksnode/pkg/systemd"
	"github.com/awslabs/eksnode/pkg/utils/utilio"
)

// derivedCNIVersion is assumed when an instance type is missing from the
// embedded dataset and max pods has to be derived online.
const derivedCNIVersion = "1.10.0"

// privateDNSRetry paces the wait for EC2 to assign the private DNS name,
// which becomes the node name and can lag instance launch.
var privateDNSRetry = &RetryPolicy{
	BaseDelay: 2 * time.Second,
	MaxDelay:  30 * time.Second,
	Timeout:   5 * time.Minute,
}

// Joiner joins the node to its cluster: it resolves instance and cluster
// facts, writes the kubelet and containerd configuration, and activates the
// systemd units.
type Joiner struct {
	Options *config.JoinOptions
	Logger  *logrus.Logger

	// RootDir is prepended to every file path written. Empty for the host
	// root; tests point it at a temp directory.
	RootDir string

	// Metadata fetches the instance metadata snapshot.
	Metadata func(ctx context.Context) (*imds.InstanceMetadata, error)

	// Cluster resolves the cluster bootstrap facts.
	Cluster func(ctx context.Context, meta *imds.InstanceMetadata) (*eks.ClusterBootstrapInfo, error)

	// KubeletVersion reports the version of the installed kubelet binary.
	KubeletVersion func(ctx context.Context) (semver.Version, error)

	// EC2 is used for private DNS lookup and online max-pods derivation.
	EC2 ec2.API

	// Systemd activates the units once all files are in place.
	Systemd systemd.Manager

	// TuneGPU locks NVIDIA clocks; only invoked for the nvidia runtime.
	TuneGPU func(ctx context.Context) error

	// LookupHost resolves the cluster endpoint for the hosts-file update on
	// local clusters.
	LookupHost func(host string) ([]string, error)

	// NumCPUs is the vCPU count used for the kube-reserved calculation.
	NumCPUs int32

	// state accumulated across steps
	meta           *imds.InstanceMetadata
	cluster        *eks.ClusterBootstrapInfo
	kubeletVersion semver.Version
	maxPods        int32
	pauseImage     string
	privateDNSName string
}

// NewJoiner wires a Joiner against the real AWS clients and host facilities.
func NewJoiner(ctx context.Context, opts *config.JoinOptions, logger *logrus.Logger) (*Joiner, error) {
	imdsClient, err := imds.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	meta, err := imdsClient.GetInstanceMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("get instance metadata: %w", err)
	}

	ec2Client, err := ec2.NewClient(ctx, meta.Region)
	if err != nil {
		return nil, err
	}
	eksClient, err := eks.NewClient(ctx, meta.Region)
	if err != nil {
		return nil, err
	}
	systemdManager, err := systemd.NewManager(ctx)
	if err != nil {
		return nil, err
	}

	return &Joiner{
		Options: opts,
		Logger:  logger,
		Metadata: func(context.Context) (*imds.InstanceMetadata, error) {
			return meta, nil
		},
		Cluster: func(ctx context.Context, meta *imds.InstanceMetadata) (*eks.ClusterBootstrapInfo, error) {
			return eks.GetClusterBootstrapInfo(ctx, logger, eksClient, opts, meta.VPCIPv4CIDRBlocks)
		},
		KubeletVersion: func(ctx context.Context) (semver.Version, error) {
			return kubelet.GetVersion(ctx, logger)
		},
		EC2:     ec2Client,
		Systemd: systemdManager,
		TuneGPU: func(ctx context.Context) error {
			return gpu.SetNvidiaMaxClock(ctx, logger)
		},
		LookupHost: lookupHostAddrs,
		NumCPUs:    int32(runtime.NumCPU()),
	}, nil
}

// path maps an absolute host path into the joiner's root directory.
func (j *Joiner) path(p string) string {
	if j.RootDir == "" {
		return p
	}
	return filepath.Join(j.RootDir, p)
}

// Join runs the full join sequence.
func (j *Joiner) Join(ctx context.Context) (*ExecutionResult, error) {
	steps := []Step{
		{Name: "resolve-instance-metadata", Run: j.resolveMetadata},
		{Name: "resolve-cluster", Run: j.resolveCluster},
		{Name: "kubelet-version", Run: j.resolveKubeletVersion},
		{Name: "calculate-max-pods", Run: j.resolveMaxPods},
		{Name: "resolve-private-dns-name", Run: j.resolvePrivateDNSName, Retry: privateDNSRetry},
		{Name: "write-ca-certificate", Run: j.writeCACert},
		{Name: "update-etc-hosts", Run: j.updateEtcHosts},
		{Name: "write-credential-provider-config", Run: j.writeCredentialProviderConfig},
		{Name: "write-kubeconfig", Run: j.writeKubeconfig},
		{Name: "write-kubelet-config", Run: j.writeKubeletConfig},
		{Name: "write-kubelet-args", Run: j.writeKubeletArgs},
		{Name: "write-containerd-config", Run: j.writeContainerdConfig},
		{Name: "write-sandbox-image-unit", Run: j.writeSandboxImageUnit},
		{Name: "tune-gpu", Run: j.tuneGPU},
		{Name: "activate-units", Run: j.activateUnits},
	}

	return NewExecutor(j.Logger).ExecuteSteps(ctx, steps, "join")
}

func (j *Joiner) resolveMetadata(ctx context.Context) error {
	meta, err := j.Metadata(ctx)
	if err != nil {
		return err
	}
	j.meta = meta
	j.Logger.WithFields(logrus.Fields{
		"instanceID":   meta.InstanceID,
		"instanceType": meta.InstanceType,
		"region":       meta.Region,
	}).Debug("instance metadata resolved")

	j.pauseImage = j.Options.PauseContainerImage
	if j.pauseImage == "" {
		j.pauseImage = ecr.GetPauseImage(j.Logger, meta.Region, j.Options.EnableFIPS)
	}

	return nil
}

func (j *Joiner) resolveCluster(ctx context.Context) error {
	cluster, err := j.Cluster(ctx, j.meta)
	if err != nil {
		return err
	}
	j.cluster = cluster
	return nil
}

func (j *Joiner) resolveKubeletVersion(ctx context.Context) error {
	version, err := j.KubeletVersion(ctx)
	if err != nil {
		return fmt.Errorf("get kubelet version: %w", err)
	}
	j.kubeletVersion = version
	return nil
}

// resolveMaxPods takes the theoretical ENI maximum for known instance types
// and derives a value through DescribeInstanceTypes for types the embedded
// dataset has not caught up with.
func (j *Joiner) resolveMaxPods(ctx context.Context) error {
	if inst, err := ec2.GetInstance(j.meta.InstanceType); err == nil {
		j.maxPods = inst.EniMaximumPods
		return nil
	}

	j.Logger.WithField("instanceType", j.meta.InstanceType).
		Info("instance type not found in static instance data, deriving max pods")

	inst, err := ec2.DeriveInstance(ctx, j.EC2, j.meta.InstanceType)
	if err != nil {
		return err
	}
	maxPods, err := resource.ResolveMaxPods(inst.Shape(), resource.MaxPodsInput{CNIVersion: derivedCNIVersion})
	if err != nil {
		return err
	}
	j.maxPods = maxPods
	return nil
}

func (j *Joiner) resolvePrivateDNSName(ctx context.Context) error {
	name, err := ec2.GetPrivateDNSName(ctx, j.EC2, j.meta.InstanceID)
	if err != nil {
		return err
	}
	j.privateDNSName = name
	return nil
}

func (j *Joiner) writeCACert(context.Context) error {
	decoded, err := base64.StdEncoding.DecodeString(j.cluster.B64CA)
	if err != nil {
		// Tolerate CA data passed through without padding.
		decoded, err = base64.RawStdEncoding.DecodeString(j.cluster.B64CA)
		if err != nil {
			return fmt.Errorf("decode cluster CA: %w", err)
		}
	}

	return utilio.WriteFileOwned(j.path(kubelet.CACertPath), decoded, 0o644)
}

// updateEtcHosts pins the cluster endpoint in /etc/hosts on local clusters
// on Outposts, where the endpoint must resolve even when the Route 53
// connection to the region is down.
func (j *Joiner) updateEtcHosts(context.Context) error {
	if !j.Options.IsLocalCluster {
		return nil
	}

	endpoint, err := url.Parse(j.cluster.Endpoint)
	if err != nil {
		return fmt.Errorf("parse cluster endpoint %q: %w", j.cluster.Endpoint, err)
	}
	host := endpoint.Hostname()

	addrs, err := j.LookupHost(host)
	if err != nil {
		return fmt.Errorf("resolve cluster endpoint %q: %w", host, err)
	}

	// Shuffled so nodes do not all pin the first resolved address.
	rand.Shuffle(len(addrs), func(i, k int) { addrs[i], addrs[k] = addrs[k], addrs[i] })

	var sb strings.Builder
	for _, addr := range addrs {
		fmt.Fprintf(&sb, "%s %s\n", addr, host)
	}

	return utilio.AppendFile(j.path("/etc/hosts"), []byte(sb.String()))
}

func (j *Joiner) writeCredentialProviderConfig(context.Context) error {
	cfg := kubelet.NewCredentialProviderConfig(j.kubeletVersion)
	return cfg.Write(j.path(kubelet.CredentialProviderConfigPath))
}

func (j *Joiner) writeKubeconfig(context.Context) error {
	// Both the bootstrap path and the cluster-ID authenticator argument
	// follow the --is-local-cluster flag, not the describe-cluster result.
	authName := j.cluster.Name
	if j.Options.IsLocalCluster {
		authName = j.Options.ClusterID
	}

	kc := kubelet.NewKubeconfig(j.cluster.Endpoint, authName, j.meta.Region, j.Options.IsLocalCluster)
	kc.Path = j.path(kc.Path)
	return kc.Write()
}

func (j *Joiner) writeKubeletConfig(context.Context) error {
	cfg := kubelet.NewConfig(kubelet.ConfigInput{
		ClusterDNSIP:     j.cluster.ClusterDNSIP.String(),
		MaxPods:          j.maxPods,
		UseMaxPods:       j.Options.UseMaxPods,
		NumCPUs:          j.NumCPUs,
		KubeletVersion:   j.kubeletVersion,
		AvailabilityZone: j.meta.AvailabilityZone,
		InstanceID:       j.meta.InstanceID,
	})

	path := j.path(kubelet.ConfigPath)
	if err := cfg.Write(path); err != nil {
		j.Logger.WithError(err).Errorf("failed to write kubelet config at %s", path)
		return err
	}
	j.Logger.Infof("created kubelet config at %s", path)

	return nil
}

func (j *Joiner) writeKubeletArgs(ctx context.Context) error {
	nodeIP, err := j.meta.NodeIP(j.Options.IPFamily)
	if err != nil {
		return err
	}

	args := kubelet.NewArgs(j.kubeletVersion, nodeIP, j.pauseImage, j.privateDNSName)
	if err := args.Write(j.path(kubelet.ArgsPath)); err != nil {
		return err
	}

	extra := kubelet.ExtraArgs{Args: j.Options.KubeletExtraArgs}
	return extra.Write(j.path(kubelet.ExtraArgsPath))
}

func (j *Joiner) writeContainerdConfig(context.Context) error {
	path := j.path(containerd.ConfigPath)

	// A user-supplied configuration replaces the generated one wholesale.
	if j.Options.ContainerdConfigFile != "" {
		content, err := os.ReadFile(j.Options.ContainerdConfigFile)
		if err != nil {
			return fmt.Errorf("read containerd config %q: %w", j.Options.ContainerdConfigFile, err)
		}
		return utilio.WriteFileOwned(path, content, 0o644)
	}

	cfg, err := containerd.NewConfiguration(j.Options.DefaultContainerRuntime, j.pauseImage)
	if err != nil {
		return err
	}
	return cfg.Write(path)
}

func (j *Joiner) writeSandboxImageUnit(context.Context) error {
	return containerd.WriteSandboxImageUnit(j.path(containerd.SandboxImageServicePath), j.pauseImage)
}

func (j *Joiner) tuneGPU(ctx context.Context) error {
	if j.Options.DefaultContainerRuntime != config.RuntimeNvidia {
		return nil
	}
	return j.TuneGPU(ctx)
}

// activateUnits is the last step: every configuration file is on disk
// before any unit is told to pick it up.
func (j *Joiner) activateUnits(ctx context.Context) error {
	if err := j.Systemd.DaemonReload(ctx); err != nil {
		return err
	}
	if err := j.Systemd.EnableUnits(ctx, "containerd.service", "sandbox-image.service", "kubelet.service"); err != nil {
		return err
	}
	// containerd is already running from boot and restarts to pick up the
	// new configuration; the others start fresh.
	if err := j.Systemd.RestartUnit(ctx, "containerd.service"); err != nil {
		return err
	}
	if err := j.Systemd.StartUnit(ctx, "sandbox-image.service"); err != nil {
		return err
	}
	return j.Systemd.StartUnit(ctx, "kubelet.service")
}

func lookupHostAddrs(host string) ([]string, error) {
	return net.LookupHost(host)
}
