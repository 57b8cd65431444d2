package artifact_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/workdir/artifact"
	"github.com/Norgate-AV/workdir/internal/testutil"
)

func TestCreate(t *testing.T) {
	t.Parallel()

	root := testutil.CreateTempDir(t)
	alloc := artifact.NewAllocator(artifact.Config{Root: root}, nil)

	dir, err := alloc.Create("results")
	require.NoError(t, err)

	assert.Equal(t, "results", dir.Name)
	assert.Equal(t, dir.CleanupDir, filepath.Dir(dir.Path))
	assert.DirExists(t, dir.Path)
	assert.FileExists(t, dir.CleanupDir+artifact.LockSuffix)
}

func TestCreate_InvalidName(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	_, err := alloc.Create("nested/name")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "path separators")
}

func TestFromPath(t *testing.T) {
	t.Parallel()

	tempDir := testutil.CreateTempDir(t)
	existing := filepath.Join(tempDir, "captured-output")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	dir := alloc.FromPath(existing)

	assert.Equal(t, existing, dir.Path)
	assert.Equal(t, "captured-output", dir.Name)
	assert.Equal(t, existing, dir.CleanupDir)
}

func TestNewCopy(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	original, err := alloc.Create("dataset")
	require.NoError(t, err)

	testutil.WriteTree(t, original.Path, map[string]string{
		"readme.txt":        "hello",
		"sub/metrics.json":  `{"count": 3}`,
		"sub/deep/notes.md": "nested",
	})

	dup, err := original.NewCopy()
	require.NoError(t, err)

	assert.Equal(t, original.Name, dup.Name)
	assert.NotEqual(t, original.Path, dup.Path)
	assert.NotEqual(t, original.CleanupDir, dup.CleanupDir)
	assert.FileExists(t, dup.CleanupDir+artifact.LockSuffix)

	assert.Equal(t, testutil.ReadTree(t, original.Path), testutil.ReadTree(t, dup.Path))
}

func TestNewCopy_IndependentContent(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	original, err := alloc.Create("dataset")
	require.NoError(t, err)

	testutil.WriteTestFile(t, original.Path, "data.txt", "before")

	dup, err := original.NewCopy()
	require.NoError(t, err)

	// Mutating the copy must not affect the original.
	testutil.WriteTestFile(t, dup.Path, "data.txt", "after")

	content, err := os.ReadFile(filepath.Join(original.Path, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "before", string(content))
}

func TestDispose(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	dir, err := alloc.Create("results")
	require.NoError(t, err)

	testutil.WriteTestFile(t, dir.Path, "output.log", "done")

	warnings := dir.Dispose()

	assert.Empty(t, warnings)
	assert.NoDirExists(t, dir.CleanupDir)
	assert.NoFileExists(t, dir.CleanupDir+artifact.LockSuffix)
}

func TestDispose_CascadesToCopies(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	original, err := alloc.Create("dataset")
	require.NoError(t, err)

	testutil.WriteTestFile(t, original.Path, "data.txt", "x")

	first, err := original.NewCopy()
	require.NoError(t, err)

	second, err := original.NewCopy()
	require.NoError(t, err)

	warnings := original.Dispose()

	assert.Empty(t, warnings)
	assert.NoDirExists(t, original.CleanupDir)
	assert.NoDirExists(t, first.CleanupDir)
	assert.NoDirExists(t, second.CleanupDir)
	assert.NoFileExists(t, first.CleanupDir+artifact.LockSuffix)
	assert.NoFileExists(t, second.CleanupDir+artifact.LockSuffix)
}

func TestDispose_CopyLeavesOriginalAndSiblings(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	original, err := alloc.Create("dataset")
	require.NoError(t, err)

	dup, err := original.NewCopy()
	require.NoError(t, err)

	sibling, err := original.NewCopy()
	require.NoError(t, err)

	warnings := dup.Dispose()

	assert.Empty(t, warnings)
	assert.NoDirExists(t, dup.CleanupDir)
	assert.DirExists(t, original.Path)
	assert.FileExists(t, original.CleanupDir+artifact.LockSuffix)
	assert.DirExists(t, sibling.Path)
	assert.FileExists(t, sibling.CleanupDir+artifact.LockSuffix)
}

func TestDispose_PreserveKeepsEverything(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{
		Root:     testutil.CreateTempDir(t),
		Preserve: true,
	}, nil)

	original, err := alloc.Create("dataset")
	require.NoError(t, err)

	dup, err := original.NewCopy()
	require.NoError(t, err)

	warnings := original.Dispose()

	assert.Empty(t, warnings)
	assert.DirExists(t, original.Path)
	assert.DirExists(t, dup.Path)
	assert.FileExists(t, original.CleanupDir+artifact.LockSuffix)
	assert.FileExists(t, dup.CleanupDir+artifact.LockSuffix)
}

func TestDispose_MissingLockMarker(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	dir, err := alloc.Create("results")
	require.NoError(t, err)

	// Someone already removed the marker out from under us.
	require.NoError(t, os.Remove(dir.CleanupDir+artifact.LockSuffix))

	warnings := dir.Dispose()

	assert.Empty(t, warnings)
	assert.NoDirExists(t, dir.CleanupDir)
}

func TestDispose_FailedRemovalKeepsReservationClaimed(t *testing.T) {
	t.Parallel()

	root := testutil.CreateTempDir(t)
	log := testutil.NewMockLogger()
	boom := errors.New("directory busy")

	failing := artifact.NewAllocatorWithDeps(artifact.Config{Root: root}, log, &artifact.AllocatorDeps{
		RemoveAll: func(string) error { return boom },
	})

	dir, err := failing.Create("results")
	require.NoError(t, err)

	warnings := dir.Dispose()

	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], boom)
	assert.Len(t, log.WarnCalls, 1)

	// The marker must outlive the failed removal, keeping the name claimed.
	assert.DirExists(t, dir.CleanupDir)
	assert.FileExists(t, dir.CleanupDir+artifact.LockSuffix)

	reservations, err := artifact.NewAllocator(artifact.Config{Root: root}, nil).List(false)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, artifact.StateActive, reservations[0].State)

	// A later stale sweep with a working remover reclaims the pair.
	result, err := allocatorAt(root, 2*time.Hour).Sweep(artifact.SweepOptions{Stale: time.Hour})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Base(dir.CleanupDir)}, result.RemovedEntries)
	assert.NoDirExists(t, dir.CleanupDir)
	assert.NoFileExists(t, dir.CleanupDir+artifact.LockSuffix)
}

func TestDispose_Idempotent(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	dir, err := alloc.Create("results")
	require.NoError(t, err)

	assert.Empty(t, dir.Dispose())
	assert.Empty(t, dir.Dispose())
}

func TestDispose_FromPathHandle(t *testing.T) {
	t.Parallel()

	tempDir := testutil.CreateTempDir(t)
	existing := filepath.Join(tempDir, "captured-output")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	warnings := alloc.FromPath(existing).Dispose()

	assert.Empty(t, warnings)
	assert.NoDirExists(t, existing)
}

func TestDispose_FromPathMissingDirectory(t *testing.T) {
	t.Parallel()

	alloc := artifact.NewAllocator(artifact.Config{Root: testutil.CreateTempDir(t)}, nil)

	warnings := alloc.FromPath(filepath.Join(testutil.CreateTempDir(t), "never-created")).Dispose()

	assert.Empty(t, warnings)
}
