package artifact

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/Norgate-AV/workdir/internal/limits"
)

// ArchiveSuffix is the file extension of reservation archives.
const ArchiveSuffix = ".tar.zst"

// Archive packs the reservation directory <root>/<id> into a zstd-compressed
// tarball at <destDir>/<id>.tar.zst and returns the archive path. An empty
// destDir falls back to the configured archive directory, then to the
// current directory. An existing archive of the same name is never
// overwritten.
//
// Only the reservation directory is packed; the lock marker stays on disk so
// the reservation remains claimed until it is disposed or swept.
func (a *Allocator) Archive(id, destDir string) (string, error) {
	// The id is joined under both the root and destDir, so it must be a
	// plain path component; anything else could pack or write outside them.
	if err := validateName(id); err != nil {
		return "", err
	}

	reservationDir := filepath.Join(a.cfg.Root, id)

	info, err := os.Stat(reservationDir)
	if err != nil {
		return "", fmt.Errorf("could not read reservation %s: %w", reservationDir, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("reservation %s is not a directory", reservationDir)
	}

	if destDir == "" {
		destDir = a.cfg.ArchiveDir
	}

	if destDir == "" {
		destDir = "."
	}

	if err := os.MkdirAll(destDir, limits.DirMode); err != nil {
		return "", fmt.Errorf("could not create archive directory %s: %w", destDir, err)
	}

	archivePath := filepath.Join(destDir, id+ArchiveSuffix)

	out, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, limits.FileMode)
	if err != nil {
		return "", fmt.Errorf("could not create archive %s: %w", archivePath, err)
	}

	success := false

	defer func() {
		out.Close()

		if !success {
			os.Remove(archivePath)
		}
	}()

	zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", fmt.Errorf("could not create zstd writer: %w", err)
	}

	tw := tar.NewWriter(zw)

	if err := a.packTree(tw, reservationDir, id); err != nil {
		tw.Close()
		zw.Close()

		return "", err
	}

	if err := tw.Close(); err != nil {
		zw.Close()

		return "", fmt.Errorf("could not finalize archive %s: %w", archivePath, err)
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("could not finalize archive %s: %w", archivePath, err)
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("could not finalize archive %s: %w", archivePath, err)
	}

	success = true

	a.log.Info("Archived reservation",
		slog.String("id", id),
		slog.String("archive", archivePath))

	return archivePath, nil
}

// packTree writes the directory tree rooted at dir into the tar writer,
// with entry names prefixed by the reservation ID.
func (a *Allocator) packTree(tw *tar.Writer, dir, id string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("could not stat %s: %w", path, err)
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("could not build tar header for %s: %w", path, err)
		}

		header.Name = filepath.ToSlash(filepath.Join(id, rel))

		if entry.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("could not write tar header for %s: %w", path, err)
		}

		if entry.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", path, err)
		}
		defer file.Close()

		if _, err := io.Copy(tw, file); err != nil {
			return fmt.Errorf("could not archive %s: %w", path, err)
		}

		return nil
	})
}
