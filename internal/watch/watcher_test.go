package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunRebuildsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "styles"), 0o755))

	builds := make(chan struct{}, 10)
	w, err := New(root, 50*time.Millisecond, func(context.Context) error {
		builds <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register directories
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "styles", "a.css"), []byte(".a{}"), 0o644))
	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a rebuild after writing a file")
	}

	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	time.Sleep(100 * time.Millisecond)
	drain(builds)

	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "hero.png"), []byte("png"), 0o644))
	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a rebuild for a file in a new directory")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunContinuesAfterFailedBuild(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	calls := make(chan int, 10)
	n := 0
	w, err := New(root, 50*time.Millisecond, func(context.Context) error {
		n++
		calls <- n
		if n == 1 {
			return errors.New("syntax error in app.js")
		}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	for i, body := range []string{"broken(", "fixed()"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte(body), 0o644))
		select {
		case got := <-calls:
			require.GreaterOrEqual(t, got, i+1)
		case <-time.After(5 * time.Second):
			t.Fatalf("expected rebuild %d", i+1)
		}
		time.Sleep(100 * time.Millisecond)
		drainInts(calls)
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err, "a failed build must not stop the watcher")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func drainInts(ch chan int) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestRunMissingRoot(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(filepath.Join(t.TempDir(), "missing"), 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.Error(t, w.Run(context.Background()))
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestIgnored(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "build")
	w, err := New(root, 0, func(context.Context) error { return nil }, out+"/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	require.True(t, w.ignored(out))
	require.True(t, w.ignored(filepath.Join(out, "js", "a.js")))
	require.False(t, w.ignored(filepath.Join(root, "buildings", "a.js")))
	require.False(t, w.ignored(filepath.Join(root, "a.js")))
}
