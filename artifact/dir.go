package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Dir is a handle to one artifact directory. Handles are created by the
// Allocator (Create, FromPath) or derived from another handle (NewCopy);
// they are not safe for concurrent use.
type Dir struct {
	// Path is the artifact directory itself, where callers put their content.
	Path string

	// Name is the artifact's base name, reused when deriving copies.
	Name string

	// CleanupDir is what Dispose removes. For reserved handles this is the
	// reservation directory wrapping Path; for FromPath handles it is Path
	// itself.
	CleanupDir string

	alloc  *Allocator
	copies []*Dir
}

// FromPath wraps an existing directory in a handle without reserving
// anything. Disposal removes the wrapped directory; there is no lock marker
// to clean up.
func (a *Allocator) FromPath(path string) *Dir {
	return &Dir{
		Path:       path,
		Name:       filepath.Base(path),
		CleanupDir: path,
		alloc:      a,
	}
}

// Create reserves a fresh artifact directory with the given name and returns
// a handle to it.
func (a *Allocator) Create(name string) (*Dir, error) {
	artifactPath, reservationDir, err := a.Reserve(name)
	if err != nil {
		return nil, err
	}

	return &Dir{
		Path:       artifactPath,
		Name:       name,
		CleanupDir: reservationDir,
		alloc:      a,
	}, nil
}

// NewCopy reserves a new directory under the same root and recursively
// copies this handle's content into it. The returned handle is registered as
// a derived copy: disposing the receiver disposes the copy as well, while
// disposing the copy leaves the receiver untouched.
func (d *Dir) NewCopy() (*Dir, error) {
	artifactPath, reservationDir, err := d.alloc.Reserve(d.Name)
	if err != nil {
		return nil, err
	}

	if err := CopyTree(d.Path, artifactPath, true); err != nil {
		return nil, fmt.Errorf("could not copy %s to %s: %w", d.Path, artifactPath, err)
	}

	dup := &Dir{
		Path:       artifactPath,
		Name:       d.Name,
		CleanupDir: reservationDir,
		alloc:      d.alloc,
	}

	d.copies = append(d.copies, dup)

	return dup, nil
}

// Dispose removes the handle's backing directory and lock marker, then
// disposes every derived copy. Failures do not abort the pass: each is
// logged as a warning and collected into the returned slice, so one stuck
// file cannot leave later copies behind. A nil return means everything was
// removed (or preserved on request).
//
// When the preserve flag is set, nothing is deleted but the cascade still
// runs so every preserved path gets reported.
func (d *Dir) Dispose() []error {
	warnings := d.removeBacking()

	for _, warn := range warnings {
		d.alloc.log.Warn("Cleanup failed", slog.Any("error", warn))
	}

	for _, dup := range d.copies {
		warnings = append(warnings, dup.Dispose()...)
	}

	d.copies = nil

	return warnings
}

// removeBacking deletes the cleanup directory first and its lock marker
// second, so that a crash in between leaves the reservation name claimed
// rather than reusable while half-cleaned. A failed directory removal keeps
// the marker for the same reason: the pair stays claimed and a later stale
// sweep can reclaim it. Missing paths are not warnings: FromPath handles
// have no marker, and a second Dispose finds nothing to do.
func (d *Dir) removeBacking() []error {
	if d.alloc.cfg.Preserve {
		d.alloc.log.Info("Preserving artifact directory", slog.String("path", d.CleanupDir))
		return nil
	}

	if _, err := os.Stat(d.CleanupDir); err != nil {
		return nil
	}

	if err := d.alloc.removeAll(d.CleanupDir); err != nil {
		return []error{fmt.Errorf("could not remove %s: %w", d.CleanupDir, err)}
	}

	lockPath := d.CleanupDir + LockSuffix

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return []error{fmt.Errorf("could not remove lock marker %s: %w", lockPath, err)}
	}

	return nil
}
