package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	lockPath := filepath.Join(dir, LockFileName)
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}
	if !strings.Contains(string(data), "pid=") {
		t.Errorf("expected pid in lock file, got %q", data)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("expected lock file removed after release")
	}

	// Release twice is a no-op.
	if err := lock.Release(); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}
}

func TestAcquireCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock in new directory: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected state directory created: %v", err)
	}
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("failed to acquire first lock: %v", err)
	}
	defer first.Release()

	_, err = Acquire(dir)
	if err == nil {
		t.Fatal("expected second acquire to fail while lock is held")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError, got %T: %v", err, err)
	}
	if !strings.Contains(lockErr.Holder, "running") {
		t.Errorf("expected holder info to mention the running process, got %q", lockErr.Holder)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}

	second, err := Acquire(dir)
	if err != nil {
		t.Fatalf("expected reacquire after release to succeed, got %v", err)
	}
	second.Release()
}
