package main

import (
	"strings"
	"testing"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	t.Parallel()

	cmd := NewRootCommand()

	want := map[string]bool{
		"join":               false,
		"calculate-max-pods": false,
		"pull":               false,
		"version":            false,
	}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestJoinCommandValidatesOptions(t *testing.T) {
	t.Parallel()

	cmd := NewJoinCommand()
	cmd.SetArgs([]string{
		"--cluster-name", "test",
		"--ip-family", "ipv9",
	})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil {
		t.Fatal("Execute() error = nil, want invalid --ip-family error")
	}
	if !strings.Contains(err.Error(), "--ip-family") {
		t.Errorf("Execute() error = %v, want an --ip-family validation error", err)
	}
}

func TestCalculateMaxPodsCommandRequiresInstanceType(t *testing.T) {
	t.Parallel()

	cmd := NewCalculateMaxPodsCommand()
	cmd.SetArgs([]string{"--cni-version", "1.12.6"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil {
		t.Fatal("Execute() error = nil, want missing instance type error")
	}
	if !strings.Contains(err.Error(), "--instance-type") {
		t.Errorf("Execute() error = %v, want an --instance-type validation error", err)
	}
}
