package artifact

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Norgate-AV/workdir/internal/limits"
)

// ReservationState classifies one entry under the artifact root.
type ReservationState string

const (
	// StateActive marks a reservation whose directory and lock marker are
	// both present.
	StateActive ReservationState = "active"

	// StateOrphaned marks a lock marker without its reservation directory,
	// left behind when a disposal crashed between removing the directory
	// and removing the marker.
	StateOrphaned ReservationState = "orphaned"

	// StateUnclaimed marks a directory without a lock marker. The
	// reservation flow never produces this, so the entry was put there by
	// something else and is never swept automatically.
	StateUnclaimed ReservationState = "unclaimed"
)

// Reservation describes one entry under the artifact root.
type Reservation struct {
	// ID is the reservation directory name (without the lock suffix).
	ID string

	// State classifies the entry.
	State ReservationState

	// ModTime is the entry's last modification time; for orphaned markers
	// it is the marker file's.
	ModTime time.Time

	// Size is the total size in bytes of the reservation directory, or -1
	// when sizes were not requested.
	Size int64

	// Artifacts lists the top-level entries inside the reservation
	// directory. Empty for orphaned markers.
	Artifacts []string
}

// SweepOptions controls what Sweep removes.
type SweepOptions struct {
	// MinAge is how old an orphaned lock marker must be before it is
	// removed. Zero means limits.DefaultSweepMinAge. The age gate keeps the
	// sweep from racing an allocation that has created its marker but not
	// yet its directory.
	MinAge time.Duration

	// Stale, when positive, additionally removes active reservations whose
	// directories have not been modified for at least this long.
	Stale time.Duration

	// DryRun reports what would be removed without touching anything.
	DryRun bool
}

// SweepResult reports what a sweep or purge removed, or would remove for a
// dry run.
type SweepResult struct {
	// RemovedMarkers lists lock marker file names removed without a sibling
	// directory.
	RemovedMarkers []string

	// RemovedEntries lists reservation IDs whose directory and marker were
	// removed.
	RemovedEntries []string

	// Warnings collects per-entry failures that did not abort the pass.
	Warnings []error
}

// List returns every reservation under the artifact root, sorted by ID. A
// missing root is an empty listing, not an error. Computing sizes walks
// every reservation directory, so it is opt-in.
func (a *Allocator) List(includeSizes bool) ([]Reservation, error) {
	dirs, locks, err := a.scanRoot()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(dirs)+len(locks))
	seen := make(map[string]bool)

	for id := range dirs {
		ids = append(ids, id)
		seen[id] = true
	}

	for id := range locks {
		if !seen[id] {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	reservations := make([]Reservation, 0, len(ids))

	for _, id := range ids {
		res := Reservation{ID: id, Size: -1}

		dirEntry, hasDir := dirs[id]
		_, hasLock := locks[id]

		switch {
		case hasDir && hasLock:
			res.State = StateActive
		case hasLock:
			res.State = StateOrphaned
		default:
			res.State = StateUnclaimed
		}

		if hasDir {
			if info, err := dirEntry.Info(); err == nil {
				res.ModTime = info.ModTime()
			}

			res.Artifacts = a.listArtifacts(id)

			if includeSizes {
				res.Size = dirSize(filepath.Join(a.cfg.Root, id))
			}
		} else if info, err := locks[id].Info(); err == nil {
			res.ModTime = info.ModTime()
		}

		reservations = append(reservations, res)
	}

	return reservations, nil
}

// Sweep removes leftovers under the artifact root: orphaned lock markers
// older than MinAge always, and stale active reservations when the Stale
// policy is enabled. Unclaimed directories are never touched. Per-entry
// failures become warnings in the result rather than aborting the pass.
func (a *Allocator) Sweep(opts SweepOptions) (*SweepResult, error) {
	if opts.MinAge <= 0 {
		opts.MinAge = limits.DefaultSweepMinAge
	}

	dirs, locks, err := a.scanRoot()
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	now := a.now()

	for _, id := range sortedKeys(locks) {
		if _, claimed := dirs[id]; claimed {
			continue
		}

		info, err := locks[id].Info()
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("could not stat lock marker %s: %w", id+LockSuffix, err))
			continue
		}

		if now.Sub(info.ModTime()) < opts.MinAge {
			a.log.Debug("Skipping recent orphaned marker", slog.String("marker", id+LockSuffix))
			continue
		}

		if !opts.DryRun {
			lockPath := filepath.Join(a.cfg.Root, id+LockSuffix)

			if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
				result.Warnings = append(result.Warnings, fmt.Errorf("could not remove lock marker %s: %w", lockPath, err))
				continue
			}
		}

		result.RemovedMarkers = append(result.RemovedMarkers, id+LockSuffix)
		a.log.Info("Removed orphaned lock marker", slog.String("marker", id+LockSuffix))
	}

	if opts.Stale > 0 {
		for _, id := range sortedKeys(dirs) {
			if _, claimed := locks[id]; !claimed {
				continue
			}

			info, err := dirs[id].Info()
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Errorf("could not stat reservation %s: %w", id, err))
				continue
			}

			if now.Sub(info.ModTime()) < opts.Stale {
				continue
			}

			if !opts.DryRun {
				if warnings := a.removeReservation(id); len(warnings) > 0 {
					result.Warnings = append(result.Warnings, warnings...)
					continue
				}
			}

			result.RemovedEntries = append(result.RemovedEntries, id)
			a.log.Info("Removed stale reservation", slog.String("id", id))
		}
	}

	return result, nil
}

// Purge removes everything under the artifact root, including unclaimed
// entries. With dryRun it only reports what would go.
func (a *Allocator) Purge(dryRun bool) (*SweepResult, error) {
	entries, err := os.ReadDir(a.cfg.Root)
	if os.IsNotExist(err) {
		return &SweepResult{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("could not read artifact root %s: %w", a.cfg.Root, err)
	}

	result := &SweepResult{}
	failed := make(map[string]bool)

	// ReadDir sorts by name, so "x" is visited before "x.lock" and each
	// directory falls before its marker, preserving disposal order.
	for _, entry := range entries {
		name := entry.Name()
		isMarker := !entry.IsDir() && strings.HasSuffix(name, LockSuffix)

		if isMarker && failed[strings.TrimSuffix(name, LockSuffix)] {
			// The sibling directory survived its removal failure; keep the
			// marker so the pair stays claimed.
			continue
		}

		if !dryRun {
			if err := a.removeAll(filepath.Join(a.cfg.Root, name)); err != nil {
				result.Warnings = append(result.Warnings, fmt.Errorf("could not remove %s: %w", name, err))

				if entry.IsDir() {
					failed[name] = true
				}

				continue
			}
		}

		if isMarker {
			result.RemovedMarkers = append(result.RemovedMarkers, name)
		} else {
			result.RemovedEntries = append(result.RemovedEntries, name)
		}
	}

	a.log.Info("Purged artifact root",
		slog.String("root", a.cfg.Root),
		slog.Int("entries", len(result.RemovedEntries)),
		slog.Int("markers", len(result.RemovedMarkers)))

	return result, nil
}

// scanRoot splits the root's entries into reservation directories and lock
// markers, keyed by reservation ID. A missing root yields empty maps.
func (a *Allocator) scanRoot() (map[string]fs.DirEntry, map[string]fs.DirEntry, error) {
	entries, err := os.ReadDir(a.cfg.Root)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}

	if err != nil {
		return nil, nil, fmt.Errorf("could not read artifact root %s: %w", a.cfg.Root, err)
	}

	dirs := make(map[string]fs.DirEntry)
	locks := make(map[string]fs.DirEntry)

	for _, entry := range entries {
		name := entry.Name()
		a.log.Trace("Scanning root entry", slog.String("name", name), slog.Bool("dir", entry.IsDir()))

		if !entry.IsDir() && strings.HasSuffix(name, LockSuffix) {
			locks[strings.TrimSuffix(name, LockSuffix)] = entry
			continue
		}

		if entry.IsDir() {
			dirs[name] = entry
		}
	}

	return dirs, locks, nil
}

// removeReservation removes a reservation directory and then its lock
// marker, in the same order disposal uses. A failed directory removal keeps
// the marker too, so the pair stays claimed for the next sweep instead of
// decaying into an unclaimed leftover.
func (a *Allocator) removeReservation(id string) []error {
	reservationDir := filepath.Join(a.cfg.Root, id)

	if err := a.removeAll(reservationDir); err != nil {
		return []error{fmt.Errorf("could not remove %s: %w", reservationDir, err)}
	}

	lockPath := reservationDir + LockSuffix

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return []error{fmt.Errorf("could not remove lock marker %s: %w", lockPath, err)}
	}

	return nil
}

// listArtifacts returns the top-level entry names inside a reservation
// directory, or nil if it cannot be read.
func (a *Allocator) listArtifacts(id string) []string {
	entries, err := os.ReadDir(filepath.Join(a.cfg.Root, id))
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}

// dirSize totals the file sizes under a directory. Unreadable entries count
// as zero; sizes are informational.
func dirSize(path string) int64 {
	var size int64

	_ = filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if entry.IsDir() {
			return nil
		}

		if info, err := entry.Info(); err == nil {
			size += info.Size()
		}

		return nil
	})

	return size
}

// sortedKeys returns the map's keys in lexical order so results are
// deterministic.
func sortedKeys(m map[string]fs.DirEntry) []string {
	keys := make([]string, 0, len(m))

	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
