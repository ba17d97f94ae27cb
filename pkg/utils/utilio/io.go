// Package utilio writes configuration files to the host. Writes are
// atomic (write-to-temp then rename) and re-runnable: an existing file is
// removed and recreated with the requested mode and root ownership.
package utilio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// WriteFile writes the provided content to a local file with the specified
// permissions. It ensures that the target directory exists and handles the
// file writing atomically.
//
// NOTE: we assume the filename is trusted and cleaned without path traversal
// characters.
func WriteFile(filename string, content []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	// Remove-then-create so permission and ownership of a pre-existing file
	// never leak into the new one.
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %q: %w", filename, err)
	}

	return renameio.WriteFile(filename, content, perm)
}

// WriteFileOwned writes the file like WriteFile and then chowns it to
// root:root. Ownership is only applied when running as root so that tests
// can exercise writers against a temp directory.
func WriteFileOwned(filename string, content []byte, perm os.FileMode) error {
	if err := WriteFile(filename, content, perm); err != nil {
		return err
	}

	if os.Geteuid() == 0 {
		if err := os.Chown(filename, 0, 0); err != nil {
			return fmt.Errorf("chown %q: %w", filename, err)
		}
	}

	return nil
}

// AppendFile appends content to an existing file. Unlike WriteFile this is
// not idempotent; it is only used for the hosts-file update on local
// clusters.
func AppendFile(filename string, content []byte) error {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G302 - hosts file is world readable
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("append to %q: %w", filename, err)
	}

	return f.Close()
}
