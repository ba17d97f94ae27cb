package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/awslabs/eksnode/pkg/bootstrapper"
	"github.com/awslabs/eksnode/pkg/config"
	"github.com/awslabs/eksnode/pkg/ec2"
	"github.com/awslabs/eksnode/pkg/imds"
	"github.com/awslabs/eksnode/pkg/resource"
	"github.com/awslabs/eksnode/pkg/utils"
)

// NewJoinCommand creates the join command
func NewJoinCommand() *cobra.Command {
	opts := &config.JoinOptions{}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the instance to its EKS cluster",
		Long:  "Resolve the cluster and instance facts, write the kubelet and containerd configuration, and start the node services",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return runJoin(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ClusterName, "cluster-name", "", "Name of the EKS cluster (required)")
	flags.StringVar(&opts.APIServerEndpoint, "apiserver-endpoint", "", "API server endpoint; skips the describe-cluster call when passed with --b64-cluster-ca")
	flags.StringVar(&opts.B64ClusterCA, "b64-cluster-ca", "", "Base64 encoded cluster certificate authority content")
	flags.StringVar(&opts.ClusterID, "cluster-id", "", "ID of a local EKS cluster on Outposts (required with --is-local-cluster)")
	flags.BoolVar(&opts.IsLocalCluster, "is-local-cluster", false, "The cluster is a local cluster on Outposts")
	flags.StringVar((*string)(&opts.IPFamily), "ip-family", string(config.IPFamilyIPv4), "IP family of the cluster (ipv4 or ipv6)")
	flags.StringVar(&opts.ServiceCIDR, "service-cidr", "", "CIDR range of cluster services, used to derive the cluster DNS IP")
	flags.StringVar(&opts.DNSClusterIP, "dns-cluster-ip", "", "Overrides the IP address used for cluster DNS queries")
	flags.StringVar(&opts.PauseContainerImage, "pause-container-image", "", "Overrides the pause container (sandbox) image")
	flags.BoolVar(&opts.UseMaxPods, "use-max-pods", true, "Set --max-pods for the kubelet")
	flags.StringVar(&opts.KubeletExtraArgs, "kubelet-extra-args", "", "Additional arguments passed to the kubelet, e.g. node labels and taints")
	flags.StringVar(&opts.ContainerdConfigFile, "containerd-config-file", "", "File containing a containerd configuration that replaces the generated one")
	flags.StringVar((*string)(&opts.LocalDisks), "local-disks", "", "Instance-store disk setup: mount or raid0")
	flags.StringVar((*string)(&opts.DefaultContainerRuntime), "default-container-runtime", string(config.RuntimeContainerd), "Default containerd runtime (containerd, nvidia, or neuron)")
	flags.BoolVar(&opts.EnableFIPS, "enable-fips", false, "Use FIPS ECR endpoints for the sandbox image")

	_ = cmd.MarkFlagRequired("cluster-name")

	return cmd
}

// NewCalculateMaxPodsCommand creates the calculate-max-pods command
func NewCalculateMaxPodsCommand() *cobra.Command {
	opts := &config.CalculateOptions{}

	cmd := &cobra.Command{
		Use:   "calculate-max-pods",
		Short: "Calculate the max pods for an instance type",
		Long:  "Calculate the recommended kubelet max-pods value from the instance type's ENI capacity and the VPC-CNI configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return runCalculateMaxPods(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.InstanceType, "instance-type", "", "Instance type to calculate max pods for")
	flags.BoolVar(&opts.InstanceTypeFromIMDS, "instance-type-from-imds", false, "Read the instance type from the instance metadata service")
	flags.StringVar(&opts.CNIVersion, "cni-version", "", "Version of the VPC-CNI addon, e.g. 1.12.6 (required)")
	flags.BoolVar(&opts.CNICustomNetworkingEnabled, "cni-custom-networking-enabled", false, "Custom networking is enabled, reserving one ENI for the CNI")
	flags.BoolVar(&opts.CNIPrefixDelegationEnabled, "cni-prefix-delegation-enabled", false, "Prefix delegation is enabled on nitro instances")
	flags.Int32Var(&opts.CNIMaxENIs, "cni-max-enis", 0, "Cap the ENIs used for the calculation; 0 uses all ENIs of the instance type")

	_ = cmd.MarkFlagRequired("cni-version")

	return cmd
}

// NewPullCommand creates the pull command used by the sandbox-image unit
func NewPullCommand() *cobra.Command {
	var image, namespace string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull an image into containerd",
		Long:  "Pull an image into a containerd namespace; used by the sandbox-image unit to cache the pause container",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd.Context(), image, namespace)
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Image reference to pull (required)")
	cmd.Flags().StringVar(&namespace, "namespace", "k8s.io", "containerd namespace to pull into")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("eksnode\n")
			fmt.Printf("Version: %s\n", Version)
			fmt.Printf("Git Commit: %s\n", GitCommit)
			fmt.Printf("Build Time: %s\n", BuildTime)
		},
	}
}

// runJoin executes the join sequence
func runJoin(ctx context.Context, opts *config.JoinOptions) error {
	log := newLogger()

	joiner, err := bootstrapper.NewJoiner(ctx, opts, log)
	if err != nil {
		return err
	}
	defer joiner.Systemd.Close()

	result, err := joiner.Join(ctx)
	if err != nil {
		return err
	}

	return handleExecutionResult(result, "join", log)
}

// runCalculateMaxPods resolves the instance type and prints the max pods
// value to stdout
func runCalculateMaxPods(ctx context.Context, opts *config.CalculateOptions) error {
	log := newLogger()

	instanceType := opts.InstanceType
	if opts.InstanceTypeFromIMDS {
		imdsClient, err := imds.NewClient(ctx)
		if err != nil {
			return err
		}
		instanceType, err = imdsClient.GetInstanceType(ctx)
		if err != nil {
			return err
		}
	}

	inst, err := ec2.GetInstance(instanceType)
	if err != nil {
		log.WithField("instanceType", instanceType).
			Debug("instance type not found in static instance data, deriving from the EC2 API")

		region, rErr := currentRegion(ctx)
		if rErr != nil {
			return rErr
		}
		client, cErr := ec2.NewClient(ctx, region)
		if cErr != nil {
			return cErr
		}
		inst, err = ec2.DeriveInstance(ctx, client, instanceType)
		if err != nil {
			return err
		}
	}

	maxPods, err := resource.ResolveMaxPods(inst.Shape(), resource.MaxPodsInput{
		CNIVersion:              opts.CNIVersion,
		CustomNetworkingEnabled: opts.CNICustomNetworkingEnabled,
		PrefixDelegationEnabled: opts.CNIPrefixDelegationEnabled,
		MaxENIs:                 opts.CNIMaxENIs,
	})
	if err != nil {
		return err
	}

	fmt.Println(maxPods)
	return nil
}

// runPull fetches an image into the local containerd content store
func runPull(ctx context.Context, image, namespace string) error {
	newLogger().WithFields(logrus.Fields{"image": image, "namespace": namespace}).Info("pulling image")
	return utils.RunSystemCommand(ctx, "ctr", "--namespace", namespace, "content", "fetch", image)
}

func currentRegion(ctx context.Context) (string, error) {
	imdsClient, err := imds.NewClient(ctx)
	if err != nil {
		return "", err
	}
	return imdsClient.GetRegion(ctx)
}

// handleExecutionResult processes and logs execution results
func handleExecutionResult(result *bootstrapper.ExecutionResult, operation string, log *logrus.Logger) error {
	if result == nil {
		return fmt.Errorf("%s result is nil", operation)
	}

	if result.Success {
		log.Infof("%s completed successfully (duration: %v, steps: %d)",
			operation, result.Duration, result.StepCount)
		return nil
	}

	return fmt.Errorf("%s failed at step %q: %s", operation, result.FailedStep, result.Error)
}
