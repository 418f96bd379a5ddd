package transaction

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock(t *testing.T) {
	t.Run("creates lock file", func(t *testing.T) {
		dir := t.TempDir()

		lock, err := AcquireLock(context.Background(), dir, "runtime")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer lock.Release()

		if _, err := os.Stat(filepath.Join(dir, "runtime.lock")); err != nil {
			t.Errorf("lock file not created: %v", err)
		}
	})

	t.Run("prevents concurrent locks", func(t *testing.T) {
		dir := t.TempDir()

		lock1, err := AcquireLock(context.Background(), dir, "runtime")
		if err != nil {
			t.Fatalf("first AcquireLock failed: %v", err)
		}
		defer lock1.Release()

		if _, err := AcquireLock(context.Background(), dir, "runtime"); err != ErrLockExists {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})

	t.Run("assets lock independently", func(t *testing.T) {
		dir := t.TempDir()

		a, err := AcquireLock(context.Background(), dir, "runtime")
		if err != nil {
			t.Fatal(err)
		}
		defer a.Release()

		b, err := AcquireLock(context.Background(), dir, "n8n-core")
		if err != nil {
			t.Fatalf("second asset lock failed: %v", err)
		}
		defer b.Release()
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := AcquireLock(ctx, t.TempDir(), "runtime"); err == nil {
			t.Error("expected error for cancelled context")
		}
	})

	t.Run("takes over stale lock", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := filepath.Join(dir, "runtime.lock")
		if err := os.WriteFile(lockPath, []byte("pid=1\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-2 * StaleLockThreshold)
		if err := os.Chtimes(lockPath, old, old); err != nil {
			t.Fatal(err)
		}

		lock, err := AcquireLock(context.Background(), dir, "runtime")
		if err != nil {
			t.Fatalf("AcquireLock over stale lock failed: %v", err)
		}
		defer lock.Release()
	})

	t.Run("release allows reacquire", func(t *testing.T) {
		dir := t.TempDir()

		lock, err := AcquireLock(context.Background(), dir, "runtime")
		if err != nil {
			t.Fatal(err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Errorf("second Release failed: %v", err)
		}

		again, err := AcquireLock(context.Background(), dir, "runtime")
		if err != nil {
			t.Fatalf("reacquire failed: %v", err)
		}
		again.Release()
	})
}
