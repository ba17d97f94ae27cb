package utils

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"

	"github.com/blang/semver/v4"
)

// ErrVersionParse is returned when no semantic version can be extracted from
// a version string.
var ErrVersionParse = errors.New("unable to parse semantic version")

// semverPattern tolerates the loose formats found in the wild: an optional
// leading "v", and an optional "-suffix" such as "-eksbuild.2" or the
// "-eks-0a21954" tail of `kubelet --version` output.
var semverPattern = regexp.MustCompile(`v?(\d+\.\d+\.\d+)(-.*)?`)

// GetSemver extracts the semantic version from the version string provided.
func GetSemver(ver string) (semver.Version, error) {
	match := semverPattern.FindStringSubmatch(ver)
	if match == nil {
		return semver.Version{}, ErrVersionParse
	}

	parsed, err := semver.Parse(match[1])
	if err != nil {
		return semver.Version{}, ErrVersionParse
	}

	return parsed, nil
}

// CmdExec executes a command and returns its stdout.
func CmdExec(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 - callers pass fixed binaries
	out, err := cmd.Output()
	return string(out), err
}

// RunSystemCommand executes a system command for privileged operations,
// forwarding output to the current process. The tool runs as root, so no
// sudo wrapping is needed.
func RunSystemCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 - callers pass fixed binaries
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
