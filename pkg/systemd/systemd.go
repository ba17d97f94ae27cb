// Package systemd abstracts systemd daemon control over D-Bus so the real
// implementation can be swapped for a fake in tests.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// ErrUnitNotFound is returned when a unit operation targets a unit that
// systemd does not know about.
var ErrUnitNotFound = errors.New("unit not found")

// Manager abstracts the systemd operations used while activating the node's
// units.
type Manager interface {
	// DaemonReload asks systemd to re-scan its unit files (daemon-reload).
	DaemonReload(ctx context.Context) error

	// EnableUnits enables the named units so they start at boot.
	EnableUnits(ctx context.Context, names ...string) error

	// StartUnit starts a unit by name, waiting for the job to complete.
	StartUnit(ctx context.Context, name string) error

	// RestartUnit restarts a unit by name, waiting for the job to complete.
	RestartUnit(ctx context.Context, name string) error

	// Close releases any resources held by the manager. Safe to call more
	// than once.
	Close()
}

// dbusManager talks to systemd over D-Bus using
// github.com/coreos/go-systemd/v22/dbus.
type dbusManager struct {
	conn *dbus.Conn
}

var _ Manager = (*dbusManager)(nil)

// NewManager creates a Manager backed by a D-Bus connection to the system's
// systemd instance. The caller should Close the returned Manager.
func NewManager(ctx context.Context) (Manager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to systemd via D-Bus: %w", err)
	}
	return &dbusManager{conn: conn}, nil
}

func (m *dbusManager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

func (m *dbusManager) DaemonReload(ctx context.Context) error {
	if err := m.conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	return nil
}

func (m *dbusManager) EnableUnits(ctx context.Context, names ...string) error {
	if _, _, err := m.conn.EnableUnitFilesContext(ctx, names, false, true); err != nil {
		return fmt.Errorf("enable %v: %w", names, err)
	}
	return nil
}

func (m *dbusManager) StartUnit(ctx context.Context, name string) error {
	return m.doUnit(ctx, "start", name, m.conn.StartUnitContext)
}

func (m *dbusManager) RestartUnit(ctx context.Context, name string) error {
	return m.doUnit(ctx, "restart", name, m.conn.RestartUnitContext)
}

type unitFunc func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// doUnit enqueues the job with mode "replace" and waits synchronously for
// the job result. A result of "done" is success; anything else (canceled,
// timeout, failed, dependency, skipped) is an error.
func (m *dbusManager) doUnit(ctx context.Context, verb, name string, fn unitFunc) error {
	ch := make(chan string, 1)

	if _, err := fn(ctx, name, "replace", ch); err != nil {
		if strings.Contains(err.Error(), "not loaded") || strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%s %s: %w", verb, name, ErrUnitNotFound)
		}
		return fmt.Errorf("%s %s: %w", verb, name, err)
	}

	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("%s %s: job result %q", verb, name, result)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
