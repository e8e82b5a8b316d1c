package file

import (
	"errors"
	"fmt"
	"os"
)

const appDirPerm os.FileMode = 0o750

// ErrExists is returned by Commit when overwrite is disabled and the target exists.
var ErrExists = errors.New("target file exists")

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// Exists reports whether anything is present at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// CreateTemp opens a hidden partial file next to the final destination so the
// final rename never crosses filesystems.
func CreateTemp(dir, finalName string) (*os.File, error) {
	tempFile, err := os.CreateTemp(dir, "."+finalName+".part-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	return tempFile, nil
}

// Discard closes and removes a partial file. Errors are ignored: the caller is
// already on a failure path.
func Discard(tempFile *os.File) {
	if tempFile == nil {
		return
	}
	_ = tempFile.Close()
	_ = os.Remove(tempFile.Name())
}

// Commit flushes tempFile and moves it to target. With overwrite disabled the
// move is a hard link, which fails atomically when target already exists.
// The temp file is removed on every path.
func Commit(tempFile *os.File, target string, overwrite bool) error {
	tmpName := tempFile.Name()
	// ensure data hits disk
	if err := tempFile.Sync(); err != nil {
		Discard(tempFile)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if overwrite {
		if err := os.Rename(tmpName, target); err != nil {
			_ = os.Remove(tmpName)
			return fmt.Errorf("rename temp: %w", err)
		}
		return nil
	}

	err := os.Link(tmpName, target)
	_ = os.Remove(tmpName)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("link temp: %w", err)
	}
	return nil
}
