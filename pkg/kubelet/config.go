package kubelet

import (
	"encoding/json"
	"fmt"

	"github.com/blang/semver/v4"

	"github.com/awslabs/eksnode/pkg/resource"
	"github.com/awslabs/eksnode/pkg/utils/utilio"
)

// KubeletConfiguration is the subset of the kubelet configuration file
// schema managed here.
//
// https://kubernetes.io/docs/reference/config-api/kubelet-config.v1beta1/
type KubeletConfiguration struct {
	Kind       string `json:"kind"`
	APIVersion string `json:"apiVersion"`

	Address        string         `json:"address,omitempty"`
	Authentication Authentication `json:"authentication"`
	Authorization  Authorization  `json:"authorization"`

	CgroupDriver                    string            `json:"cgroupDriver,omitempty"`
	CgroupRoot                      string            `json:"cgroupRoot,omitempty"`
	ClusterDNS                      []string          `json:"clusterDNS,omitempty"`
	ClusterDomain                   string            `json:"clusterDomain,omitempty"`
	ContainerRuntimeEndpoint        string            `json:"containerRuntimeEndpoint,omitempty"`
	EvictionHard                    map[string]string `json:"evictionHard,omitempty"`
	FeatureGates                    map[string]bool   `json:"featureGates,omitempty"`
	HairpinMode                     string            `json:"hairpinMode,omitempty"`
	KubeAPIBurst                    *int32            `json:"kubeAPIBurst,omitempty"`
	KubeAPIQPS                      *int32            `json:"kubeAPIQPS,omitempty"`
	KubeReserved                    map[string]string `json:"kubeReserved,omitempty"`
	KubeReservedCgroup              string            `json:"kubeReservedCgroup,omitempty"`
	MaxPods                         *int32            `json:"maxPods,omitempty"`
	ProtectKernelDefaults           *bool             `json:"protectKernelDefaults,omitempty"`
	ProviderID                      string            `json:"providerID,omitempty"`
	ReadOnlyPort                    *int32            `json:"readOnlyPort,omitempty"`
	RegistryBurst                   *int32            `json:"registryBurst,omitempty"`
	RegistryPullQPS                 *int32            `json:"registryPullQPS,omitempty"`
	SerializeImagePulls             *bool             `json:"serializeImagePulls,omitempty"`
	ServerTLSBootstrap              *bool             `json:"serverTLSBootstrap,omitempty"`
	ShutdownGracePeriod             string            `json:"shutdownGracePeriod,omitempty"`
	ShutdownGracePeriodCriticalPods string            `json:"shutdownGracePeriodCriticalPods,omitempty"`
	SystemReservedCgroup            string            `json:"systemReservedCgroup,omitempty"`
	TLSCipherSuites                 []string          `json:"tlsCipherSuites,omitempty"`
}

// Authentication specifies how requests to the kubelet's server are
// authenticated.
type Authentication struct {
	Anonymous AuthnAnonymous `json:"anonymous"`
	Webhook   AuthnWebhook   `json:"webhook"`
	X509      AuthnX509      `json:"x509"`
}

type AuthnAnonymous struct {
	Enabled bool `json:"enabled"`
}

type AuthnWebhook struct {
	CacheTTL string `json:"cacheTTL"`
	Enabled  bool   `json:"enabled"`
}

type AuthnX509 struct {
	ClientCAFile string `json:"clientCAFile"`
}

// Authorization specifies how requests to the kubelet's server are
// authorized.
type Authorization struct {
	Mode    string       `json:"mode"`
	Webhook AuthzWebhook `json:"webhook"`
}

type AuthzWebhook struct {
	CacheAuthorizedTTL   string `json:"cacheAuthorizedTTL"`
	CacheUnauthorizedTTL string `json:"cacheUnauthorizedTTL"`
}

// ConfigInput carries the per-node values for building the kubelet
// configuration.
type ConfigInput struct {
	ClusterDNSIP     string
	MaxPods          int32
	UseMaxPods       bool
	NumCPUs          int32
	KubeletVersion   semver.Version
	AvailabilityZone string
	InstanceID       string
}

func int32Ptr(v int32) *int32 { return &v }
func boolPtr(v bool) *bool    { return &v }

// NewConfig builds the kubelet configuration for a node, applying the
// defaults hardened for EKS and the adjustments tied to the kubelet version.
func NewConfig(in ConfigInput) *KubeletConfiguration {
	config := &KubeletConfiguration{
		Kind:       "KubeletConfiguration",
		APIVersion: "kubelet.config.k8s.io/v1beta1",
		Address:    "0.0.0.0",
		Authentication: Authentication{
			Anonymous: AuthnAnonymous{Enabled: false},
			Webhook:   AuthnWebhook{CacheTTL: "2m0s", Enabled: true},
			X509:      AuthnX509{ClientCAFile: CACertPath},
		},
		Authorization: Authorization{
			Mode: "Webhook",
			Webhook: AuthzWebhook{
				CacheAuthorizedTTL:   "5m0s",
				CacheUnauthorizedTTL: "30s",
			},
		},
		CgroupDriver:             "systemd",
		CgroupRoot:               "/",
		ClusterDNS:               []string{in.ClusterDNSIP},
		ClusterDomain:            "cluster.local",
		ContainerRuntimeEndpoint: "unix:///run/containerd/containerd.sock",
		EvictionHard: map[string]string{
			"memory.available":  "100Mi",
			"nodefs.available":  "10%",
			"nodefs.inodesFree": "5%",
		},
		FeatureGates: map[string]bool{
			"RotateKubeletServerCertificate": true,
		},
		HairpinMode: "hairpin-veth",
		KubeReserved: map[string]string{
			"cpu":               fmt.Sprintf("%dm", resource.CPUMillicoresToReserve(in.MaxPods, in.NumCPUs)),
			"ephemeral-storage": "3Gi",
			"memory":            fmt.Sprintf("%dMi", resource.MemoryMebibytesToReserve(in.MaxPods)),
		},
		KubeReservedCgroup:              "/runtime",
		ProtectKernelDefaults:           boolPtr(true),
		ReadOnlyPort:                    int32Ptr(0),
		SerializeImagePulls:             boolPtr(false),
		ServerTLSBootstrap:              boolPtr(true),
		ShutdownGracePeriod:             "45s",
		ShutdownGracePeriodCriticalPods: "15s",
		SystemReservedCgroup:            "/system",
		TLSCipherSuites: []string{
			"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
			"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
			"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305",
			"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
			"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305",
			"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
			"TLS_RSA_WITH_AES_256_GCM_SHA384",
			"TLS_RSA_WITH_AES_128_GCM_SHA256",
		},
	}

	if in.UseMaxPods {
		config.MaxPods = int32Ptr(in.MaxPods)
	}

	for _, rule := range versionRules {
		if rule.matches(in.KubeletVersion) {
			rule.apply(config, in)
		}
	}

	return config
}

// versionRule mutates the configuration when the kubelet version matches.
type versionRule struct {
	name    string
	matches func(v semver.Version) bool
	apply   func(c *KubeletConfiguration, in ConfigInput)
}

// versionRules are applied in order on top of the defaults.
var versionRules = []versionRule{
	{
		// Raise the API priority and fairness settings on versions where
		// the defaults are still 5/10. Starting with 1.27 the kubelet
		// defaults are already 50/100 and are left alone.
		name: "api-qps",
		matches: func(v semver.Version) bool {
			return v.GE(semver.MustParse("1.22.0")) && v.LT(semver.MustParse("1.27.0"))
		},
		apply: func(c *KubeletConfiguration, _ ConfigInput) {
			c.KubeAPIQPS = int32Ptr(10)
			c.KubeAPIBurst = int32Ptr(20)
		},
	},
	{
		// The external cloud provider identifies the node through
		// providerID; the in-tree provider derives it itself.
		name: "provider-id",
		matches: func(v semver.Version) bool {
			return v.GE(semver.MustParse("1.26.0"))
		},
		apply: func(c *KubeletConfiguration, in ConfigInput) {
			c.ProviderID = fmt.Sprintf("aws:///%s/%s", in.AvailabilityZone, in.InstanceID)
		},
	},
	{
		// KubeletCredentialProviders graduated and was removed as a gate
		// in 1.28.
		name: "credential-provider-gate",
		matches: func(v semver.Version) bool {
			return v.LT(semver.MustParse("1.28.0"))
		},
		apply: func(c *KubeletConfiguration, _ ConfigInput) {
			c.FeatureGates["KubeletCredentialProviders"] = true
		},
	},
}

// Write serializes the configuration to the given path.
func (c *KubeletConfiguration) Write(path string) error {
	content, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal kubelet config: %w", err)
	}

	return utilio.WriteFileOwned(path, content, 0o644)
}
