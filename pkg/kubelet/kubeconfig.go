package kubelet

import (
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/clientcmd/api"
	"k8s.io/client-go/tools/clientcmd/api/latest"

	"github.com/awslabs/eksnode/pkg/utils/utilio"
)

// Kubeconfig is the kubeconfig the kubelet authenticates with, paired with
// the path it belongs at. On a local cluster on Outposts the kubeconfig is a
// bootstrap kubeconfig: TLS bootstrapping downloads a client X.509
// certificate so the node stays authenticated while disconnected from the
// region.
type Kubeconfig struct {
	Config *api.Config
	Path   string
}

// NewKubeconfig builds the kubelet's kubeconfig, which exchanges IAM
// credentials for cluster credentials through aws-iam-authenticator.
//
// authName is the identifier passed to `aws-iam-authenticator token -i`: the
// cluster name, or the cluster ID for a local cluster on Outposts.
func NewKubeconfig(endpoint, authName, region string, isLocalCluster bool) *Kubeconfig {
	const (
		cluster  = "kubernetes"
		authInfo = "kubelet"
	)

	path := KubeconfigPath
	if isLocalCluster {
		path = BootstrapKubeconfigPath
	}

	return &Kubeconfig{
		Path: path,
		Config: &api.Config{
			Clusters: map[string]*api.Cluster{
				cluster: {
					Server:               endpoint,
					CertificateAuthority: CACertPath,
				},
			},
			Contexts: map[string]*api.Context{
				authInfo: {
					Cluster:  cluster,
					AuthInfo: authInfo,
				},
			},
			CurrentContext: authInfo,
			AuthInfos: map[string]*api.AuthInfo{
				authInfo: {
					Exec: &api.ExecConfig{
						APIVersion: "client.authentication.k8s.io/v1beta1",
						Command:    "/usr/bin/aws-iam-authenticator",
						Args: []string{
							"token",
							"-i",
							authName,
							"--region",
							region,
						},
						InteractiveMode: api.NeverExecInteractiveMode,
					},
				},
			},
		},
	}
}

// Write serializes the kubeconfig to its path.
func (k *Kubeconfig) Write() error {
	content, err := runtime.Encode(latest.Codec, k.Config)
	if err != nil {
		return err
	}

	return utilio.WriteFileOwned(k.Path, content, 0o644)
}
