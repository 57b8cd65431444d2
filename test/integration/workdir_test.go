//go:build integration
// +build integration

package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/workdir/artifact"
	"github.com/Norgate-AV/workdir/internal/logger"
)

// TestIntegration_FullLifecycle tests reserve, populate, copy, and dispose
// against a real shared root
func TestIntegration_FullLifecycle(t *testing.T) {
	root := t.TempDir()
	alloc := newTestAllocator(t, root)

	// Reserve and populate
	t.Log("Reserving artifact directory...")
	original, err := alloc.Create("capture")
	require.NoError(t, err, "Should reserve an artifact directory")
	require.DirExists(t, original.Path)

	writeFixtureTree(t, original.Path)

	// Derive a copy
	t.Log("Deriving a copy...")
	dup, err := original.NewCopy()
	require.NoError(t, err, "Should derive a copy")
	assert.NotEqual(t, original.Path, dup.Path, "Copy should live in its own reservation")
	assert.FileExists(t, filepath.Join(dup.Path, "logs", "run.log"), "Copy should contain the fixture tree")

	// Dispose the original; the copy goes with it
	t.Log("Disposing...")
	warnings := original.Dispose()
	assert.Empty(t, warnings, "Disposal should produce no warnings")

	assert.NoDirExists(t, original.CleanupDir)
	assert.NoDirExists(t, dup.CleanupDir)
	assert.NoFileExists(t, original.CleanupDir+artifact.LockSuffix)
	assert.NoFileExists(t, dup.CleanupDir+artifact.LockSuffix)

	// Root should be completely empty again
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "Root should be empty after disposal")
}

// TestIntegration_ConcurrentReservations tests many goroutines hammering the
// same root
func TestIntegration_ConcurrentReservations(t *testing.T) {
	root := t.TempDir()

	const workers = 32

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	paths := make(map[string]bool)

	t.Logf("Reserving from %d workers...", workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			alloc := newTestAllocator(t, root)

			dir, err := alloc.Create(fmt.Sprintf("worker-%d", n))
			if err != nil {
				t.Errorf("worker %d: %v", n, err)
				return
			}

			mu.Lock()
			paths[dir.CleanupDir] = true
			mu.Unlock()
		}(i)
	}

	wg.Wait()

	assert.Len(t, paths, workers, "Every worker should get its own reservation")

	for path := range paths {
		assert.DirExists(t, path)
		assert.FileExists(t, path+artifact.LockSuffix)
	}
}

// TestIntegration_SweepAfterCrash tests that a sweep reclaims what a crashed
// disposal left behind
func TestIntegration_SweepAfterCrash(t *testing.T) {
	root := t.TempDir()
	alloc := newTestAllocator(t, root)

	// A completed disposal that crashed between directory and marker removal
	// leaves just the marker.
	_, reservationDir, err := alloc.Reserve("results")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(reservationDir))

	orphanedMarker := reservationDir + artifact.LockSuffix
	require.FileExists(t, orphanedMarker)

	// A healthy reservation must survive the sweep.
	_, survivor, err := alloc.Reserve("results")
	require.NoError(t, err)

	t.Log("Sweeping...")

	// Age the clock instead of the files.
	aged := artifact.NewAllocatorWithDeps(artifact.Config{Root: root}, nil, &artifact.AllocatorDeps{
		Now: func() time.Time { return time.Now().Add(2 * time.Hour) },
	})

	result, err := aged.Sweep(artifact.SweepOptions{})
	require.NoError(t, err)

	assert.Len(t, result.RemovedMarkers, 1, "Should remove the orphaned marker")
	assert.Empty(t, result.Warnings)
	assert.NoFileExists(t, orphanedMarker)
	assert.DirExists(t, survivor, "Active reservation should survive the sweep")
	assert.FileExists(t, survivor+artifact.LockSuffix)
}

// TestIntegration_ArchiveRoundTrip tests archiving a populated reservation
func TestIntegration_ArchiveRoundTrip(t *testing.T) {
	root := t.TempDir()
	alloc := newTestAllocator(t, root)

	dir, err := alloc.Create("capture")
	require.NoError(t, err)

	writeFixtureTree(t, dir.Path)

	destDir := t.TempDir()
	id := filepath.Base(dir.CleanupDir)

	t.Logf("Archiving %s...", id)
	archivePath, err := alloc.Archive(id, destDir)
	require.NoError(t, err, "Should archive the reservation")

	info, err := os.Stat(archivePath)
	require.NoError(t, err)
	assert.Positive(t, info.Size(), "Archive should not be empty")

	// Archiving must not release the reservation.
	assert.DirExists(t, dir.Path)
	assert.FileExists(t, dir.CleanupDir+artifact.LockSuffix)
}

// TestIntegration_PreserveMode tests that preserve keeps everything on disk
func TestIntegration_PreserveMode(t *testing.T) {
	root := t.TempDir()

	log, err := logger.NewLogger(logger.LoggerOptions{LogDir: t.TempDir()})
	require.NoError(t, err, "Should create logger")
	defer log.Close()

	alloc := artifact.NewAllocator(artifact.Config{Root: root, Preserve: true}, log)

	original, err := alloc.Create("capture")
	require.NoError(t, err)

	dup, err := original.NewCopy()
	require.NoError(t, err)

	warnings := original.Dispose()
	assert.Empty(t, warnings)

	assert.DirExists(t, original.Path, "Preserve should keep the original")
	assert.DirExists(t, dup.Path, "Preserve should keep the copy")
	assert.FileExists(t, original.CleanupDir+artifact.LockSuffix)
	assert.FileExists(t, dup.CleanupDir+artifact.LockSuffix)
}

// Helper Functions

// newTestAllocator builds an allocator with a quiet logger for the given root
func newTestAllocator(t *testing.T, root string) *artifact.Allocator {
	t.Helper()

	return artifact.NewAllocator(artifact.Config{Root: root}, logger.NewNoOpLogger())
}

// writeFixtureTree fills an artifact directory with a small realistic tree
func writeFixtureTree(t *testing.T, dir string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logs", "run.log"), []byte("started\nfinished\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.yaml"), []byte("status: ok\n"), 0o644))
}
