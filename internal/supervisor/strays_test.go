package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestKillStrays(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on Linux naming script processes after the script file")
	}

	const name = "n8nboxstray"
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nwhile true; do sleep 1; done\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start stray: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	// Give the kernel a moment to publish the process name.
	time.Sleep(100 * time.Millisecond)

	if err := KillStrays(context.Background(), name, nil); err != nil {
		t.Fatalf("KillStrays() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stray process survived")
	}
}

func TestKillStrays_NoMatch(t *testing.T) {
	if err := KillStrays(context.Background(), "n8nbox-no-such-process", nil); err != nil {
		t.Errorf("KillStrays() error = %v", err)
	}
}
