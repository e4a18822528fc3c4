package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	other := filepath.Join(dir, "other.md")
	require.NoError(t, os.WriteFile(path, []byte("# one"), 0o600))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- File(ctx, path, 100*time.Millisecond, logger, func() { calls.Add(1) })
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o600))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("# two"), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestFileMissingDirectory(t *testing.T) {
	logger := logrus.New()
	err := File(context.Background(), filepath.Join(t.TempDir(), "nope", "doc.md"), 0, logger, func() {})
	assert.Error(t, err)
}
