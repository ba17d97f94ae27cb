package kubelet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/blang/semver/v4"
)

func baseInput(version string) ConfigInput {
	return ConfigInput{
		ClusterDNSIP:     "10.100.0.10",
		MaxPods:          110,
		UseMaxPods:       true,
		NumCPUs:          2,
		KubeletVersion:   semver.MustParse(version),
		AvailabilityZone: "us-east-1a",
		InstanceID:       "i-0e46d9575664f45bd",
	}
}

func TestNewConfig122(t *testing.T) {
	t.Parallel()

	config := NewConfig(baseInput("1.22.0"))

	if config.KubeAPIQPS == nil || *config.KubeAPIQPS != 10 {
		t.Fatalf("KubeAPIQPS = %v, want 10", config.KubeAPIQPS)
	}
	if config.KubeAPIBurst == nil || *config.KubeAPIBurst != 20 {
		t.Fatalf("KubeAPIBurst = %v, want 20", config.KubeAPIBurst)
	}
	if config.MaxPods == nil || *config.MaxPods != 110 {
		t.Fatalf("MaxPods = %v, want 110", config.MaxPods)
	}
	if config.ProviderID != "" {
		t.Fatalf("ProviderID = %q, want empty below 1.26", config.ProviderID)
	}
	if !config.FeatureGates["KubeletCredentialProviders"] {
		t.Fatal("KubeletCredentialProviders gate not set below 1.28")
	}
}

func TestNewConfig126(t *testing.T) {
	t.Parallel()

	in := baseInput("1.26.0")
	in.UseMaxPods = false
	config := NewConfig(in)

	if config.KubeAPIQPS == nil || *config.KubeAPIQPS != 10 {
		t.Fatalf("KubeAPIQPS = %v, want 10", config.KubeAPIQPS)
	}
	if config.MaxPods != nil {
		t.Fatalf("MaxPods = %v, want unset", config.MaxPods)
	}
	if config.ProviderID != "aws:///us-east-1a/i-0e46d9575664f45bd" {
		t.Fatalf("ProviderID = %q", config.ProviderID)
	}
}

func TestNewConfig127(t *testing.T) {
	t.Parallel()

	config := NewConfig(baseInput("1.27.0"))

	if config.KubeAPIQPS != nil || config.KubeAPIBurst != nil {
		t.Fatalf("KubeAPIQPS/Burst = %v/%v, want unset at 1.27", config.KubeAPIQPS, config.KubeAPIBurst)
	}
	if config.ProviderID != "aws:///us-east-1a/i-0e46d9575664f45bd" {
		t.Fatalf("ProviderID = %q", config.ProviderID)
	}
	if !config.FeatureGates["KubeletCredentialProviders"] {
		t.Fatal("KubeletCredentialProviders gate not set below 1.28")
	}
}

func TestNewConfig128(t *testing.T) {
	t.Parallel()

	config := NewConfig(baseInput("1.28.0"))

	if _, ok := config.FeatureGates["KubeletCredentialProviders"]; ok {
		t.Fatal("KubeletCredentialProviders gate set at 1.28")
	}
	if !config.FeatureGates["RotateKubeletServerCertificate"] {
		t.Fatal("RotateKubeletServerCertificate gate missing")
	}
}

func TestVersionRuleMatching(t *testing.T) {
	t.Parallel()

	// match windows per rule name, probed at the boundary versions
	wantMatch := map[string]map[string]bool{
		"api-qps":                  {"1.21.0": false, "1.22.0": true, "1.26.9": true, "1.27.0": false},
		"provider-id":              {"1.25.9": false, "1.26.0": true, "1.29.0": true},
		"credential-provider-gate": {"1.27.9": true, "1.28.0": false},
	}

	rules := make(map[string]versionRule, len(versionRules))
	for _, rule := range versionRules {
		rules[rule.name] = rule
	}

	for name, probes := range wantMatch {
		rule, ok := rules[name]
		if !ok {
			t.Fatalf("rule %q not registered", name)
		}
		for version, want := range probes {
			if got := rule.matches(semver.MustParse(version)); got != want {
				t.Errorf("rule %q matches(%s) = %v, want %v", name, version, got, want)
			}
		}
	}
}

func TestNewConfigReservations(t *testing.T) {
	t.Parallel()

	config := NewConfig(baseInput("1.27.0"))

	if got := config.KubeReserved["memory"]; got != "1465Mi" {
		t.Fatalf("kubeReserved memory = %q, want 1465Mi", got)
	}
	if got := config.KubeReserved["cpu"]; got != "70m" {
		t.Fatalf("kubeReserved cpu = %q, want 70m", got)
	}
	if got := config.KubeReserved["ephemeral-storage"]; got != "3Gi" {
		t.Fatalf("kubeReserved ephemeral-storage = %q, want 3Gi", got)
	}
}

func TestConfigWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kubelet-config.json")
	config := NewConfig(baseInput("1.27.0"))
	if err := config.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var parsed KubeletConfiguration
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if parsed.Kind != "KubeletConfiguration" || parsed.APIVersion != "kubelet.config.k8s.io/v1beta1" {
		t.Fatalf("parsed header = %q %q", parsed.Kind, parsed.APIVersion)
	}
	if parsed.ReadOnlyPort == nil || *parsed.ReadOnlyPort != 0 {
		t.Fatalf("readOnlyPort = %v, want explicit 0", parsed.ReadOnlyPort)
	}
	if len(parsed.ClusterDNS) != 1 || parsed.ClusterDNS[0] != "10.100.0.10" {
		t.Fatalf("clusterDNS = %v", parsed.ClusterDNS)
	}
}
