// Package kubelet builds the configuration artifacts for the kubelet:
// the configuration file, systemd argument drop-ins, the image credential
// provider configuration, and the bootstrap kubeconfig.
package kubelet

import (
	"context"

	"github.com/blang/semver/v4"
	"github.com/sirupsen/logrus"

	"github.com/awslabs/eksnode/pkg/utils"
)

const (
	// ConfigPath is where the kubelet configuration file is written.
	ConfigPath = "/etc/kubernetes/kubelet/kubelet-config.json"

	// ArgsPath is the systemd drop-in carrying the KUBELET_ARGS environment.
	ArgsPath = "/etc/systemd/system/kubelet.service.d/10-kubelet-args.conf"

	// ExtraArgsPath is the systemd drop-in carrying user-supplied arguments.
	ExtraArgsPath = "/etc/systemd/system/kubelet.service.d/30-kubelet-extra-args.conf"

	// CredentialProviderConfigPath is where the image credential provider
	// configuration is written.
	CredentialProviderConfigPath = "/etc/eks/image-credential-provider/config.json"

	// CACertPath is where the decoded cluster CA certificate is written. The
	// kubelet configuration and kubeconfig both reference it.
	CACertPath = "/etc/kubernetes/pki/ca.crt"

	// KubeconfigPath is where the kubeconfig is written for standard clusters.
	KubeconfigPath = "/var/lib/kubelet/kubeconfig"

	// BootstrapKubeconfigPath is where the kubeconfig is written for local
	// clusters on Outposts, where TLS bootstrapping issues the client
	// certificate so the node can authenticate while disconnected.
	BootstrapKubeconfigPath = "/var/lib/kubelet/bootstrap-kubeconfig"
)

// GetVersion returns the semantic version reported by the kubelet binary on
// the host.
func GetVersion(ctx context.Context, log *logrus.Logger) (semver.Version, error) {
	out, err := utils.CmdExec(ctx, "kubelet", "--version")
	if err != nil {
		return semver.Version{}, err
	}
	log.WithField("output", out).Debug("kubelet version")

	return utils.GetSemver(out)
}
