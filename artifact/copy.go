package artifact

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyTree recursively copies the directory tree at src into dst, creating
// dst if needed. Directory and file permission bits are carried over from
// the source.
//
// When overwrite is false, files that already exist under dst are silently
// left as they are; the destination's version wins. When overwrite is true,
// existing files are replaced.
func CopyTree(src, dst string, overwrite bool) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("could not read source directory %s: %w", src, err)
	}

	if !srcInfo.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("could not create destination directory %s: %w", dst, err)
	}

	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		target := filepath.Join(dst, rel)

		if entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return err
			}

			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("could not create directory %s: %w", target, err)
			}

			return nil
		}

		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return nil
			}
		}

		return copyFile(path, target)
	})
}

// copyFile copies src to dst byte for byte, replacing dst if it exists and
// applying the source file's permission bits to newly created files.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("could not copy %s to %s: %w", src, dst, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("could not finalize %s: %w", dst, err)
	}

	return nil
}
