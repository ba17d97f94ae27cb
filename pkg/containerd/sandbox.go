package containerd

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awslabs/eksnode/pkg/utils/utilio"
)

// SandboxImageServicePath is where the sandbox-image systemd unit is
// written.
const SandboxImageServicePath = "/etc/systemd/system/sandbox-image.service"

// The unit pulls the pause image through the node's own pull command so the
// ECR credential flow is shared. Requires containerd to be running, which it
// is at boot on the AMI.
var sandboxImageUnit = template.Must(template.New("sandbox-image.service").Parse(`[Unit]
Description=pull sandbox image defined in containerd config.toml
After=containerd.service
Requires=containerd.service

[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart=eksnode pull --image {{.PauseImage}} --namespace k8s.io

[Install]
WantedBy=multi-user.target
`))

// RenderSandboxImageUnit produces the sandbox-image unit content for the
// given pause image.
func RenderSandboxImageUnit(pauseImage string) ([]byte, error) {
	var buf bytes.Buffer
	err := sandboxImageUnit.Execute(&buf, struct{ PauseImage string }{PauseImage: pauseImage})
	if err != nil {
		return nil, fmt.Errorf("render sandbox-image unit: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSandboxImageUnit writes the sandbox-image unit to the given path.
func WriteSandboxImageUnit(path, pauseImage string) error {
	content, err := RenderSandboxImageUnit(pauseImage)
	if err != nil {
		return err
	}

	return utilio.WriteFileOwned(path, content, 0o644)
}
