//go:build !unix

package core

import (
	"io/fs"
	"os"
)

// checkAccess falls back to the owner write bit where access(2) is not
// available.
func checkAccess(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o200 == 0 {
		return &fs.PathError{Op: "access", Path: path, Err: fs.ErrPermission}
	}
	return nil
}
