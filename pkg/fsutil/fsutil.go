package fsutil

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// IsNotEmpty reports whether err is the error returned when removing a
// directory that still has entries. Some systems report EEXIST instead of
// ENOTEMPTY.
func IsNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

// IsNotExist is os.IsNotExist that also looks through wrapped errors.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
