//go:build unix

package core

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

func checkAccess(path string) error {
	err := unix.Access(path, unix.W_OK)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EROFS) {
		err = fs.ErrPermission
	}
	return &fs.PathError{Op: "access", Path: path, Err: err}
}
