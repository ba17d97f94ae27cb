package kubelet

import (
	"encoding/json"
	"fmt"

	"github.com/blang/semver/v4"

	"github.com/awslabs/eksnode/pkg/utils/utilio"
)

// CredentialProviderConfig enables the exec credential provider plugins the
// kubelet uses when pulling images from ECR.
//
// https://kubernetes.io/docs/reference/config-api/kubelet-config.v1/
type CredentialProviderConfig struct {
	Kind       string               `json:"kind"`
	APIVersion string               `json:"apiVersion"`
	Providers  []CredentialProvider `json:"providers"`
}

// CredentialProvider represents an exec plugin invoked by the kubelet when
// an image being pulled matches one of MatchImages.
type CredentialProvider struct {
	Name                 string   `json:"name"`
	MatchImages          []string `json:"matchImages"`
	DefaultCacheDuration string   `json:"defaultCacheDuration"`
	APIVersion           string   `json:"apiVersion"`
	Args                 []string `json:"args,omitempty"`
}

// NewCredentialProviderConfig builds the credential provider configuration
// for the given kubelet version.
func NewCredentialProviderConfig(kubeletVersion semver.Version) *CredentialProviderConfig {
	// ecr-credential-provider only implements v1alpha1 prior to 1.27.1:
	// https://github.com/kubernetes/cloud-provider-aws/pull/597
	apiVersion := "credentialprovider.kubelet.k8s.io/v1"
	if kubeletVersion.LT(semver.MustParse("1.27.0")) {
		apiVersion = "credentialprovider.kubelet.k8s.io/v1alpha1"
	}

	return &CredentialProviderConfig{
		Kind:       "CredentialProviderConfig",
		APIVersion: apiVersion,
		Providers: []CredentialProvider{{
			Name: "ecr-credential-provider",
			MatchImages: []string{
				"*.dkr.ecr.*.amazonaws.com",
				"*.dkr.ecr.*.amazonaws.com.cn",
				"*.dkr.ecr-fips.*.amazonaws.com",
				"*.dkr.ecr.us-iso-east-1.c2s.ic.gov",
				"*.dkr.ecr.us-isob-east-1.sc2s.sgov.gov",
			},
			DefaultCacheDuration: "12h",
			APIVersion:           "credentialprovider.kubelet.k8s.io/v1",
		}},
	}
}

// Write serializes the configuration to the given path.
func (c *CredentialProviderConfig) Write(path string) error {
	content, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential provider config: %w", err)
	}

	return utilio.WriteFileOwned(path, content, 0o644)
}
