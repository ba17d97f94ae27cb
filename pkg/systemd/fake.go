package systemd

import (
	"context"
	"fmt"
	"strings"
)

// FakeManager records actions instead of talking to a real systemd
// instance.
type FakeManager struct {
	// Actions records every operation as "verb:unit" strings for test
	// assertions; daemon-reload is recorded as "daemon-reload".
	Actions []string

	// FailOn makes the named unit operations return an error.
	FailOn map[string]error
}

var _ Manager = (*FakeManager)(nil)

func (f *FakeManager) record(action string, units ...string) error {
	entry := action
	if len(units) > 0 {
		entry = fmt.Sprintf("%s:%s", action, strings.Join(units, ","))
	}
	f.Actions = append(f.Actions, entry)

	for _, unit := range units {
		if err, ok := f.FailOn[unit]; ok {
			return err
		}
	}
	return nil
}

func (f *FakeManager) Close() {}

func (f *FakeManager) DaemonReload(context.Context) error {
	return f.record("daemon-reload")
}

func (f *FakeManager) EnableUnits(_ context.Context, names ...string) error {
	return f.record("enable", names...)
}

func (f *FakeManager) StartUnit(_ context.Context, name string) error {
	return f.record("start", name)
}

func (f *FakeManager) RestartUnit(_ context.Context, name string) error {
	return f.record("restart", name)
}
