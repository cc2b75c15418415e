package safeio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEmpty(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent dir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestResolveSingleReturnsFilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.mstat")
	writeEmpty(t, path)

	got, err := ResolveSingle(context.Background(), path, ".mstat")
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if got != path {
		t.Fatalf("expected %s, got %s", path, got)
	}
}

func TestResolveSingleSearchesRecursively(t *testing.T) {
	root := t.TempDir()
	want := filepath.Join(root, "obj", "Release", "net8.0", "linux-x64", "native", "HelloWorld.MSTAT")
	writeEmpty(t, want)
	writeEmpty(t, filepath.Join(root, "obj", "HelloWorld.dgml.xml"))
	writeEmpty(t, filepath.Join(root, ".git", "stale.mstat"))

	got, err := ResolveSingle(context.Background(), root, ".mstat")
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestResolveSingleErrors(t *testing.T) {
	empty := t.TempDir()
	if _, err := ResolveSingle(context.Background(), empty, ".mstat"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}

	ambiguous := t.TempDir()
	writeEmpty(t, filepath.Join(ambiguous, "a", "first.mstat"))
	writeEmpty(t, filepath.Join(ambiguous, "b", "second.mstat"))
	_, err := ResolveSingle(context.Background(), ambiguous, ".mstat")
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "first.mstat") || !strings.Contains(err.Error(), "second.mstat") {
		t.Fatalf("expected both candidates in error, got %v", err)
	}

	if _, err := ResolveSingle(context.Background(), filepath.Join(empty, "missing"), ".mstat"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestResolveSingleCanceled(t *testing.T) {
	root := t.TempDir()
	writeEmpty(t, filepath.Join(root, "app.mstat"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ResolveSingle(ctx, root, ".mstat"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
