package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionFlag(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("expected version in output, got %q", out.String())
	}
}

func TestInvalidConfigFailsBeforeStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", path})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRejectsPositionalArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}
