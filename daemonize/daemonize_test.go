// Copyright (c) 2025 BVK Chaitanya

package daemonize

import (
	"os"
	"slices"
	"strconv"
	"testing"
)

func TestChildEnv(t *testing.T) {
	env := childEnv([]string{"HOME=/root", EnvKey + "=1", "PIPWATCH_POLL_INTERVAL=2s"}, 42)
	want := []string{"HOME=/root", "PIPWATCH_POLL_INTERVAL=2s", EnvKey + "=42"}
	if !slices.Equal(env, want) {
		t.Fatalf("want %q, got %q", want, env)
	}
}

func TestIsChild(t *testing.T) {
	t.Setenv(EnvKey, "")
	if IsChild() || ParentPID() != 0 {
		t.Fatalf("process should not be a child without the env key")
	}
	t.Setenv(EnvKey, strconv.Itoa(os.Getpid()))
	if !IsChild() || ParentPID() != os.Getpid() {
		t.Fatalf("want child process with parent pid %d", os.Getpid())
	}
}
