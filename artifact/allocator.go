// Package artifact manages working directories for test runs: race-safe
// reservation of unique directories under a shared root, recursive copying,
// disposal, and maintenance of the root (listing, sweeping, archiving).
//
// Mutual exclusion between concurrent processes rests on one primitive only:
// a sibling ".lock" marker file created with O_CREATE|O_EXCL. Whoever creates
// the marker owns the equally named reservation directory next to it. No
// advisory locks, no lock daemons.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Norgate-AV/workdir/internal/limits"
	"github.com/Norgate-AV/workdir/internal/logger"
)

// LockSuffix is appended to a reservation directory name to form its lock
// marker file name.
const LockSuffix = ".lock"

// Allocator reserves collision-free directories under a configured artifact
// root. It is safe for use from multiple goroutines and multiple processes
// sharing the same root.
type Allocator struct {
	cfg       Config
	log       logger.LoggerInterface
	newID     func() string
	now       func() time.Time
	removeAll func(string) error
}

// AllocatorDeps holds injectable dependencies for testing.
type AllocatorDeps struct {
	// NewID produces reservation directory names. Defaults to uuid.NewString.
	NewID func() string

	// Now supplies the current time for age checks. Defaults to time.Now.
	Now func() time.Time

	// RemoveAll deletes directory trees during disposal, sweeps, and purges.
	// Defaults to os.RemoveAll.
	RemoveAll func(path string) error
}

// NewAllocator creates an Allocator with production dependencies.
func NewAllocator(cfg Config, log logger.LoggerInterface) *Allocator {
	return NewAllocatorWithDeps(cfg, log, &AllocatorDeps{})
}

// NewAllocatorWithDeps creates an Allocator with custom dependencies for
// testing. Nil fields fall back to the production defaults.
func NewAllocatorWithDeps(cfg Config, log logger.LoggerInterface, deps *AllocatorDeps) *Allocator {
	a := &Allocator{
		cfg:       cfg,
		log:       log,
		newID:     deps.NewID,
		now:       deps.Now,
		removeAll: deps.RemoveAll,
	}

	if a.log == nil {
		a.log = logger.NewNoOpLogger()
	}

	if a.newID == nil {
		a.newID = uuid.NewString
	}

	if a.now == nil {
		a.now = time.Now
	}

	if a.removeAll == nil {
		a.removeAll = os.RemoveAll
	}

	return a
}

// Root returns the artifact root this allocator reserves under.
func (a *Allocator) Root() string {
	return a.cfg.Root
}

// Reserve claims a unique reservation directory under the artifact root and
// creates the artifact directory <reservation>/<name> inside it. It returns
// the artifact directory path and the reservation directory path.
//
// Each attempt picks a fresh random reservation name and tries to create the
// sibling lock marker with O_CREATE|O_EXCL. Losing the race to another
// process just means another attempt with a new name; after
// limits.MaxReserveAttempts failures Reserve gives up and reports the last
// error it saw.
func (a *Allocator) Reserve(name string) (string, string, error) {
	if err := validateName(name); err != nil {
		return "", "", err
	}

	if err := a.cfg.EnsureRoot(); err != nil {
		return "", "", err
	}

	var lastErr error

	for attempt := 1; attempt <= limits.MaxReserveAttempts; attempt++ {
		reservationDir := filepath.Join(a.cfg.Root, a.newID())
		lockPath := reservationDir + LockSuffix

		lock, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, limits.LockFileMode)
		if err != nil {
			lastErr = err
			a.log.Debug("Lock marker creation failed, retrying with a new name",
				slog.String("lock", lockPath),
				slog.Int("attempt", attempt),
				slog.Any("error", err))

			continue
		}

		if err := lock.Close(); err != nil {
			a.log.Warn("Failed to close lock marker", slog.String("lock", lockPath), slog.Any("error", err))
		}

		artifactPath := filepath.Join(reservationDir, name)

		if err := os.MkdirAll(artifactPath, limits.DirMode); err != nil {
			// The name race is already won, so retrying with a fresh name
			// cannot help. Release the marker and fail.
			if removeErr := os.Remove(lockPath); removeErr != nil {
				a.log.Warn("Failed to release lock marker after directory creation failure",
					slog.String("lock", lockPath),
					slog.Any("error", removeErr))
			}

			return "", "", fmt.Errorf("could not create artifact directory %s: %w", artifactPath, err)
		}

		a.log.Debug("Reserved artifact directory",
			slog.String("path", artifactPath),
			slog.Int("attempt", attempt))

		return artifactPath, reservationDir, nil
	}

	return "", "", fmt.Errorf("could not reserve a directory for %q under %s after %d attempts: %w",
		name, a.cfg.Root, limits.MaxReserveAttempts, lastErr)
}

// validateName rejects caller-supplied names that would escape the directory
// they are joined under or collide with special path components. Artifact
// names and reservation IDs are both single path components.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name %q is not a valid directory name", name)
	}

	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", name)
	}

	return nil
}
