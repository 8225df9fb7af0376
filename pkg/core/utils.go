package core

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// entrySize is the byte count of one non-directory entry. PathSize and
// RemovePath both use it so a dry-run estimate matches what a real run
// frees on the same tree.
func entrySize(info fs.FileInfo) int64 {
	if info.IsDir() {
		return 0
	}
	return info.Size()
}

// PathSize sums the sizes of every non-directory entry under path without
// following symlinks. A missing path has size zero.
func PathSize(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return entrySize(info), nil
	}

	var size int64
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		size += entrySize(fi)
		return nil
	})
	return size, err
}

// RemovePath deletes path (file, symlink or directory tree) and returns
// the bytes freed, counted per removed entry. On error the count covers
// what was removed before it. A missing path frees nothing.
func RemovePath(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	if !info.IsDir() {
		if err := os.Remove(path); err != nil {
			return 0, err
		}
		return entrySize(info), nil
	}

	var freed int64
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		freed += entrySize(fi)
		return nil
	})
	if err != nil {
		return freed, err
	}

	// Files are gone; remove the now empty directories deepest first.
	if err := removeEmptyDirs(path); err != nil {
		return freed, err
	}
	return freed, nil
}

func removeEmptyDirs(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := removeEmptyDirs(filepath.Join(dirPath, entry.Name())); err != nil {
				return err
			}
		}
	}
	return os.Remove(dirPath)
}

// CheckWritable verifies the current user may remove path: write access
// on path and its parent, or on the parent alone when path does not
// exist (or is a symlink).
func CheckWritable(path string) error {
	parent := filepath.Dir(path)
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return checkAccess(parent)
	case err != nil:
		return err
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		if err := checkAccess(path); err != nil {
			return err
		}
	}
	return checkAccess(parent)
}
