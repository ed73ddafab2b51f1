package storage

import (
	"sync"

	"github.com/materials-commons/tierstore/pkg/dirlock"
	"github.com/spf13/afero"
)

// lockedReader keeps a lock until the file is closed.
type lockedReader struct {
	afero.File
	handle  *dirlock.Handle
	release func(h *dirlock.Handle)
	once    sync.Once
}

func (r *lockedReader) Close() error {
	err := r.File.Close()
	r.once.Do(func() { r.release(r.handle) })
	return err
}
