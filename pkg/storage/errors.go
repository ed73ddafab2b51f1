package storage

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned when reading a dataset or file that does not
	// exist. Deletes of missing things succeed.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned by Put when the file is already stored.
	ErrExists = errors.New("already exists")

	// ErrUnsupported is returned by the archive tier for file level calls.
	ErrUnsupported = errors.New("unsupported storage unit")
)
