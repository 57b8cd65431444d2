// Package limits defines operational bounds and filesystem modes for workdir operations.
package limits

import "time"

const (
	// Reservation Bounds

	// MaxReserveAttempts is the maximum number of random names tried when
	// reserving a directory under the artifact root. Collisions are resolved
	// by retrying with a fresh name rather than waiting, so this bounds the
	// worst case while keeping collisions astronomically unlikely under
	// proper randomness.
	MaxReserveAttempts = 10

	// Filesystem Modes

	// DirMode is the permission mode for directories created under the
	// artifact root (reservation directories, artifact directories, and
	// directories mirrored during recursive copy when the source mode
	// cannot be read).
	DirMode = 0o755

	// FileMode is the permission mode for files created by workdir itself,
	// such as archives. Files produced by recursive copy keep the source
	// file's mode instead.
	FileMode = 0o644

	// LockFileMode is the permission mode for lock-marker files. Markers
	// carry no content; only their existence matters.
	LockFileMode = 0o644

	// Sweep Ages

	// DefaultSweepMinAge is the default minimum age before sweep will touch
	// an orphaned lock marker. A marker legitimately exists without its
	// reservation directory for a moment during allocation, so young
	// orphans must be left alone.
	DefaultSweepMinAge = 1 * time.Hour
)
