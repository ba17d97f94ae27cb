// Package containerd renders the containerd configuration and the
// sandbox-image systemd unit.
package containerd

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"

	"github.com/awslabs/eksnode/pkg/config"
	"github.com/awslabs/eksnode/pkg/utils/utilio"
)

// ConfigPath is where the containerd configuration is written.
const ConfigPath = "/etc/containerd/config.toml"

const criPlugin = "io.containerd.grpc.v1.cri"

// Configuration is the containerd server configuration, kept as a generic
// tree because the variant overlays only touch a few nested tables.
//
// https://github.com/containerd/containerd/blob/main/services/server/config/config.go
type Configuration map[string]any

// NewConfiguration builds the containerd configuration for the given
// default runtime variant and sandbox image.
func NewConfiguration(defaultRuntime config.DefaultRuntime, sandboxImage string) (Configuration, error) {
	base := Configuration{
		"version": int64(2),
		"root":    "/var/lib/containerd",
		"state":   "/run/containerd",
		"grpc": map[string]any{
			"address": "/run/containerd/containerd.sock",
		},
		"plugins": map[string]any{
			criPlugin: map[string]any{
				"sandbox_image": sandboxImage,
				"cni": map[string]any{
					"bin_dir":  "/opt/cni/bin",
					"conf_dir": "/etc/cni/net.d",
				},
				"registry": map[string]any{
					"config_path": "/etc/containerd/certs.d:/etc/docker/certs.d",
				},
			},
		},
	}

	overlay, err := runtimeOverlay(defaultRuntime)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(&base, overlay, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge runtime overlay: %w", err)
	}

	return base, nil
}

// runtimeOverlay returns the containerd runtime table for the variant. The
// accelerated variants route containers through their runtime shim wrapper.
func runtimeOverlay(defaultRuntime config.DefaultRuntime) (Configuration, error) {
	name := "runc"
	options := map[string]any{
		"SystemdCgroup": true,
	}

	switch defaultRuntime {
	case config.RuntimeContainerd:
	case config.RuntimeNvidia:
		name = "nvidia"
		options["BinaryName"] = "/usr/bin/nvidia-container-runtime"
	case config.RuntimeNeuron:
		name = "neuron"
		options["BinaryName"] = "/opt/aws/neuron/bin/oci_neuron_hook_wrapper.sh"
	default:
		return nil, fmt.Errorf("unknown default runtime %q", defaultRuntime)
	}

	return Configuration{
		"plugins": map[string]any{
			criPlugin: map[string]any{
				"containerd": map[string]any{
					"default_runtime_name":    name,
					"discard_unpacked_layers": true,
					"runtimes": map[string]any{
						name: map[string]any{
							"runtime_type": "io.containerd.runc.v2",
							"options":      options,
						},
					},
				},
			},
		},
	}, nil
}

// Render encodes the configuration as TOML.
func (c Configuration) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(map[string]any(c)); err != nil {
		return nil, fmt.Errorf("encode containerd config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the configuration and writes it to the given path.
func (c Configuration) Write(path string) error {
	content, err := c.Render()
	if err != nil {
		return err
	}

	return utilio.WriteFileOwned(path, content, 0o644)
}
